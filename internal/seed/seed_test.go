package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pamilerinsimon03/WemaTrust/internal/bankdir"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFixture(t *testing.T) {
	f, err := Default()
	require.NoError(t, err)

	require.Len(t, f.Banks, 4)
	assert.Equal(t, Bank{ID: "bank_d", Name: "UBA", Status: "DOWN", HistoricalSuccessRate: 0.60}, f.Banks[3])
	require.Len(t, f.Accounts, 2)
	assert.Equal(t, "0123456789", f.Accounts[0].AccountNumber)
	assert.Equal(t, int64(100000), f.Accounts[0].Balance)
	assert.Equal(t, int64(50000), f.Accounts[1].Balance)
	require.Len(t, f.Users, 3)
	assert.Empty(t, f.Users[0].AccountID, "admin owns no account")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
banks:
  - {id: bank_x, name: Test Bank, status: slow, historical_success_rate: 0.7}
accounts:
  - {id: acc_x, name: Tester, account_number: "1111111111", bank_id: bank_x, balance: 10}
users:
  - {id: tester, name: Tester, roles: [user], account_id: acc_x}
`), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bank_x", f.Banks[0].ID)
	assert.Equal(t, "acc_x", f.Users[0].AccountID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidFixtures(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "banks:\n  - {id: b, name: B, status: UP, colour: red}\n",
		"bad status":        "banks:\n  - {id: b, name: B, status: FLAKY}\n",
		"rate out of range": "banks:\n  - {id: b, name: B, status: UP, historical_success_rate: 2}\n",
		"short number":      "accounts:\n  - {id: a, account_number: \"123\"}\n",
		"duplicate number":  "accounts:\n  - {id: a, account_number: \"1111111111\"}\n  - {id: b, account_number: \"1111111111\"}\n",
		"unknown bank":      "accounts:\n  - {id: a, account_number: \"1111111111\", bank_id: nope}\n",
		"dangling user":     "users:\n  - {id: u, account_id: acc_missing}\n",
		"negative balance":  "accounts:\n  - {id: a, account_number: \"1111111111\", balance: -1}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidFixture)
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepository()
	banks := bankdir.New(repo, events.NewBus(8, nil))
	f, err := Default()
	require.NoError(t, err)

	res, err := Apply(ctx, f, repo, banks, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Banks: 4, Accounts: 2, Users: 3}, res)

	_, err = repo.DebitAccount(ctx, "acc_1", 1000)
	require.NoError(t, err)
	_, err = banks.SetStatus(ctx, "bank_a", domain.BankSlow)
	require.NoError(t, err)

	res, err = Apply(ctx, f, repo, banks, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 3}, res)

	acc, err := repo.FindAccountByID(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, int64(99000), acc.Balance, "reseeding must not reset balances")
	assert.Equal(t, domain.BankSlow, banks.Status(ctx, "bank_a"))

	user, err := repo.FindUserByID(ctx, "user2")
	require.NoError(t, err)
	assert.Equal(t, "acc_2", user.AccountID)
}
