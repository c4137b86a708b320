// Package apiclient is the authenticated HTTP client for the ERP API.
//
// Every request carries the current access token as a bearer credential.
// When the API answers 401 the client hands the failure to a Coordinator,
// which guarantees that at most one refresh call is in flight no matter how
// many requests discover the expired token at once. Requests arriving while
// a refresh is running are queued and replayed, in arrival order, with the
// refreshed token once it is available.
//
// A request is replayed at most once. A second 401, a 401 from the refresh
// endpoint itself, a missing refresh token or a failed refresh end the
// session: the credential store is cleared, the SessionExpiredHandler is
// notified once for that session, and the caller receives an error matching
// ErrSessionExpired.
//
//	client, err := apiclient.New(store,
//		apiclient.WithBaseURL("https://erp.example.com/api"),
//		apiclient.WithSessionExpiredHandler(handler),
//	)
//	client.SetRefresher(authService)
//
//	var out apiclient.Response[[]customers.Customer]
//	err = client.GetJSON(ctx, "/customers", &out)
package apiclient
