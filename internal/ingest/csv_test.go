package ingest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapleopard/campaign-dispatcher/internal/ingest"
)

func TestReadContacts(t *testing.T) {
	input := "name,phone,birth_date\n" +
		"Alice Souza,11987654321,1990-04-12\n" +
		"Bruno Lima,(21) 99876-5432,\n"

	contacts, err := ingest.ReadContacts(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, 1, contacts[0].Row)
	assert.Equal(t, "Alice Souza", contacts[0].Name)
	assert.Equal(t, "11987654321", contacts[0].Phone)
	assert.Equal(t, "1990-04-12", contacts[0].BirthDate)

	assert.Equal(t, 2, contacts[1].Row)
	assert.Equal(t, "(21) 99876-5432", contacts[1].Phone)
	assert.Empty(t, contacts[1].BirthDate)
}

func TestReadContactsHeaderOrderDoesNotMatter(t *testing.T) {
	input := "phone,name\n11987654321,Alice\n"

	contacts, err := ingest.ReadContacts(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice", contacts[0].Name)
	assert.Equal(t, "11987654321", contacts[0].Phone)
}

func TestReadContactsMissingColumnIsStructural(t *testing.T) {
	_, err := ingest.ReadContacts(strings.NewReader("name,email\nAlice,a@b.c\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone")
}

func TestReadContactsShortRowTolerated(t *testing.T) {
	input := "name,phone,birth_date\nAlice,11987654321\n"

	contacts, err := ingest.ReadContacts(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Empty(t, contacts[0].BirthDate)
}
