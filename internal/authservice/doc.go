// Package authservice translates ERP authentication operations into API
// calls and binds their results to the session store.
//
// Service is a thin adapter over the authenticated client: login, token
// refresh, logout, revoke-all and active-token listing. Manager layers the
// session flows on top of it, e.g. a successful login starts a new session
// and a logout always ends it, whatever the server answered.
package authservice
