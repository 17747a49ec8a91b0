/**
 * @description
 * YAML fixtures for the demo network: partner banks, accounts and the users that own
 * them. A default fixture is embedded in the binary; SEED_FILE points at a replacement.
 *
 * @dependencies
 * - gopkg.in/yaml.v3: fixture decoding.
 */
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFixture []byte

var ErrInvalidFixture = errors.New("invalid seed fixture")

type Bank struct {
	ID                    string  `yaml:"id"`
	Name                  string  `yaml:"name"`
	Status                string  `yaml:"status"`
	HistoricalSuccessRate float64 `yaml:"historical_success_rate"`
}

type Account struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	AccountNumber string `yaml:"account_number"`
	BankID        string `yaml:"bank_id"`
	Balance       int64  `yaml:"balance"`
}

type User struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Roles     []string `yaml:"roles"`
	AccountID string   `yaml:"account_id"`
}

// Fixture is the decoded seed file.
type Fixture struct {
	Banks    []Bank    `yaml:"banks"`
	Accounts []Account `yaml:"accounts"`
	Users    []User    `yaml:"users"`
}

// Default returns the embedded demo fixture.
func Default() (*Fixture, error) {
	return Parse(defaultFixture)
}

// Load reads the fixture at path, or the embedded default when path is empty.
func Load(path string) (*Fixture, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a fixture. Unknown keys are rejected.
func Parse(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidFixture}, args...)...))
	}

	banks := make(map[string]bool, len(f.Banks))
	for _, b := range f.Banks {
		if b.ID == "" {
			invalid("bank without id")
			continue
		}
		if banks[b.ID] {
			invalid("duplicate bank %s", b.ID)
		}
		banks[b.ID] = true
		if _, err := domain.ParseBankStatus(b.Status); err != nil {
			invalid("bank %s: %v", b.ID, err)
		}
		if b.HistoricalSuccessRate < 0 || b.HistoricalSuccessRate > 1 {
			invalid("bank %s: historical_success_rate %v outside [0,1]", b.ID, b.HistoricalSuccessRate)
		}
	}

	accounts := make(map[string]bool, len(f.Accounts))
	numbers := make(map[string]bool, len(f.Accounts))
	for _, a := range f.Accounts {
		if a.ID == "" {
			invalid("account without id")
			continue
		}
		if accounts[a.ID] {
			invalid("duplicate account %s", a.ID)
		}
		accounts[a.ID] = true
		if !domain.IsValidAccountNumber(a.AccountNumber) {
			invalid("account %s: account_number %q is not 10 digits", a.ID, a.AccountNumber)
		} else if numbers[a.AccountNumber] {
			invalid("account %s: account_number %s already used", a.ID, a.AccountNumber)
		}
		numbers[a.AccountNumber] = true
		if a.Balance < 0 {
			invalid("account %s: negative balance", a.ID)
		}
		if a.BankID != "" && !banks[a.BankID] {
			invalid("account %s: unknown bank %s", a.ID, a.BankID)
		}
	}

	users := make(map[string]bool, len(f.Users))
	for _, u := range f.Users {
		if u.ID == "" {
			invalid("user without id")
			continue
		}
		if users[u.ID] {
			invalid("duplicate user %s", u.ID)
		}
		users[u.ID] = true
		if u.AccountID != "" && !accounts[u.AccountID] {
			invalid("user %s: unknown account %s", u.ID, u.AccountID)
		}
	}
	return errors.Join(errs...)
}

// Store receives seeded records.
type Store interface {
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account domain.Account) error
	SaveUser(ctx context.Context, user domain.User) error
}

// BankRegistry receives seeded partner banks.
type BankRegistry interface {
	Get(ctx context.Context, bankID string) (*domain.PartnerBank, error)
	Register(ctx context.Context, bank domain.PartnerBank) error
}

// Result counts what Apply created.
type Result struct {
	Banks    int
	Accounts int
	Users    int
}

// Apply creates the fixture's missing banks and accounts and upserts its users.
// Existing banks and accounts keep their current status and balance.
func Apply(ctx context.Context, f *Fixture, store Store, banks BankRegistry, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result

	for _, b := range f.Banks {
		if _, err := banks.Get(ctx, b.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrBankNotFound) {
			return res, fmt.Errorf("lookup bank %s: %w", b.ID, err)
		}
		status, _ := domain.ParseBankStatus(b.Status)
		if err := banks.Register(ctx, domain.PartnerBank{ID: b.ID, Name: b.Name, Status: status, HistoricalSuccessRate: b.HistoricalSuccessRate}); err != nil {
			return res, fmt.Errorf("register bank %s: %w", b.ID, err)
		}
		res.Banks++
	}

	for _, a := range f.Accounts {
		if _, err := store.FindAccountByID(ctx, a.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrAccountNotFound) {
			return res, fmt.Errorf("lookup account %s: %w", a.ID, err)
		}
		account := domain.Account{ID: a.ID, Name: a.Name, AccountNumber: a.AccountNumber, BankID: a.BankID, Balance: a.Balance}
		if err := store.CreateAccount(ctx, account); err != nil {
			return res, fmt.Errorf("create account %s: %w", a.ID, err)
		}
		res.Accounts++
	}

	for _, u := range f.Users {
		if err := store.SaveUser(ctx, domain.User{ID: u.ID, Name: u.Name, Roles: u.Roles, AccountID: u.AccountID}); err != nil {
			return res, fmt.Errorf("save user %s: %w", u.ID, err)
		}
		res.Users++
	}

	logger.Info("seed applied", "banks_created", res.Banks, "accounts_created", res.Accounts, "users_saved", res.Users)
	return res, nil
}
