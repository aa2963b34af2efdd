package domain

import (
	"strings"

	"github.com/google/uuid"
)

// UIMode selects the presentation density.
type UIMode string

const (
	UIModeProfessional UIMode = "professional"
	UIModeMinimalist   UIMode = "minimalist"
)

// Valid reports whether m is a known mode.
func (m UIMode) Valid() bool {
	return m == UIModeProfessional || m == UIModeMinimalist
}

// DefaultCurrency is used whenever an empty currency symbol is set.
const DefaultCurrency = "$"

// Category is a spending category with a monthly limit.
type Category struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Limit float64 `json:"limit"`
}

// CoupleMode attributes transactions to one of two partners.
type CoupleMode struct {
	Enabled      bool   `json:"enabled"`
	Partner1Name string `json:"partner1Name"`
	Partner2Name string `json:"partner2Name"`
}

// Settings is the per-account singleton configuration.
type Settings struct {
	Currency   string     `json:"currency"`
	UIMode     UIMode     `json:"uiMode"`
	Categories []Category `json:"categories"`
	CoupleMode CoupleMode `json:"coupleMode"`
}

// DefaultSettings returns a fresh settings value with the starter categories.
// Category ids are generated on every call.
func DefaultSettings() Settings {
	return Settings{
		Currency: DefaultCurrency,
		UIMode:   UIModeProfessional,
		Categories: []Category{
			{ID: uuid.NewString(), Name: "Groceries", Limit: 600},
			{ID: uuid.NewString(), Name: "Eating Out", Limit: 250},
			{ID: uuid.NewString(), Name: "Fun", Limit: 200},
			{ID: uuid.NewString(), Name: "Bills", Limit: 1600},
		},
		CoupleMode: CoupleMode{
			Partner1Name: "Partner 1",
			Partner2Name: "Partner 2",
		},
	}
}

// CategoryByName finds a category by case-insensitive name.
func (s Settings) CategoryByName(name string) (Category, bool) {
	for _, c := range s.Categories {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Category{}, false
}

// DedupeCategories drops later categories whose name matches an earlier one
// case-insensitively. The input slice is not modified.
func DedupeCategories(in []Category) []Category {
	seen := make(map[string]struct{}, len(in))
	out := make([]Category, 0, len(in))
	for _, c := range in {
		k := strings.ToLower(c.Name)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SettingsPatch lists every updatable settings field. Categories and
// CoupleMode are replaced as a whole.
type SettingsPatch struct {
	Currency   Field[string]
	UIMode     Field[UIMode]
	Categories Field[[]Category]
	CoupleMode Field[CoupleMode]
}

// Apply returns s with every present field of p merged in.
func (p SettingsPatch) Apply(s Settings) Settings {
	if v, ok := p.Currency.Get(); ok {
		s.Currency = v
	}
	if v, ok := p.UIMode.Get(); ok {
		s.UIMode = v
	}
	if v, ok := p.Categories.Get(); ok {
		s.Categories = append([]Category(nil), v...)
	}
	if v, ok := p.CoupleMode.Get(); ok {
		s.CoupleMode = v
	}
	return s
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return !p.Currency.IsSet() && !p.UIMode.IsSet() && !p.Categories.IsSet() && !p.CoupleMode.IsSet()
}
