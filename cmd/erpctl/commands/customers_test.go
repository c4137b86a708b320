package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/erpctl/internal/customers"
)

func TestWriteCustomerTable(t *testing.T) {
	rnc := "101234567"
	list := []customers.Customer{
		{ID: "c1", BusinessName: "Acme SRL", RepresentativeName: "ANA PEREZ", RNC: &rnc, IsActive: true},
		{ID: "c2", BusinessName: strings.Repeat("x", 40), RepresentativeName: "bo"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeCustomerTable(&buf, list))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "BUSINESS NAME")
	assert.Contains(t, lines[1], "Ana Perez")
	assert.Contains(t, lines[1], "101-23456-7")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[2], strings.Repeat("x", maxNameWidth)+"...")
	assert.Contains(t, lines[2], "no")
}
