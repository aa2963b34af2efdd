package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/twocents/internal/domain"
)

// Patch is a partial update body. A key that is missing leaves the field
// alone; a key holding null clears a nullable field.
type Patch map[string]json.RawMessage

// EncodeGoalPatch renders p with only its present fields.
func EncodeGoalPatch(p domain.GoalPatch) (Patch, error) {
	e := encoder{out: Patch{}}
	encodeField(&e, "name", p.Name)
	encodeField(&e, "current", p.Current)
	encodeField(&e, "target", p.Target)
	encodeField(&e, "category", p.Category)
	encodeField(&e, "target_date", p.TargetDate)
	encodeField(&e, "color", p.Color)
	encodeField(&e, "is_debt", p.IsDebt)
	encodeField(&e, "original_debt", p.OriginalDebt)
	encodeField(&e, "completed_at", p.CompletedAt)
	encodeField(&e, "linked_categories", p.LinkedCategories)
	encodeField(&e, "linked_bill_names", p.LinkedBillNames)
	return e.out, e.err
}

// DecodeGoalPatch reads the fields present in p. Unknown keys are ignored.
func DecodeGoalPatch(p Patch) (domain.GoalPatch, error) {
	var (
		out domain.GoalPatch
		d   = decoder{in: p}
	)
	out.Name = decodeField[string](&d, "name")
	out.Current = decodeField[float64](&d, "current")
	out.Target = decodeField[float64](&d, "target")
	out.Category = decodeField[domain.GoalCategory](&d, "category")
	out.TargetDate = decodeField[*civil.Date](&d, "target_date")
	out.Color = decodeField[string](&d, "color")
	out.IsDebt = decodeField[bool](&d, "is_debt")
	out.OriginalDebt = decodeField[*float64](&d, "original_debt")
	out.CompletedAt = decodeField[*time.Time](&d, "completed_at")
	out.LinkedCategories = decodeField[[]string](&d, "linked_categories")
	out.LinkedBillNames = decodeField[[]string](&d, "linked_bill_names")
	return out, d.err
}

// EncodeBillPatch renders p. The empty linked goal id and category are sent
// as null.
func EncodeBillPatch(p domain.BillPatch) (Patch, error) {
	e := encoder{out: Patch{}}
	encodeField(&e, "name", p.Name)
	encodeField(&e, "amount", p.Amount)
	encodeField(&e, "due_day", p.DueDay)
	encodeField(&e, "last_paid", p.LastPaid)
	encodeField(&e, "linked_goal_id", nullable(p.LinkedGoalID))
	encodeField(&e, "category", nullable(p.Category))
	return e.out, e.err
}

func DecodeBillPatch(p Patch) (domain.BillPatch, error) {
	var (
		out domain.BillPatch
		d   = decoder{in: p}
	)
	out.Name = decodeField[string](&d, "name")
	out.Amount = decodeField[float64](&d, "amount")
	out.DueDay = decodeField[int](&d, "due_day")
	out.LastPaid = decodeField[*civil.Date](&d, "last_paid")
	out.LinkedGoalID = nonNullable(decodeField[*string](&d, "linked_goal_id"))
	out.Category = nonNullable(decodeField[*string](&d, "category"))
	return out, d.err
}

func EncodeSettingsPatch(p domain.SettingsPatch) (Patch, error) {
	e := encoder{out: Patch{}}
	encodeField(&e, "currency", p.Currency)
	encodeField(&e, "ui_mode", p.UIMode)
	if v, ok := p.Categories.Get(); ok {
		cats := make([]Category, 0, len(v))
		for _, c := range v {
			cats = append(cats, Category(c))
		}
		encodeField(&e, "categories", domain.Set(cats))
	}
	if v, ok := p.CoupleMode.Get(); ok {
		encodeField(&e, "couple_mode", domain.Set(CoupleMode(v)))
	}
	return e.out, e.err
}

func DecodeSettingsPatch(p Patch) (domain.SettingsPatch, error) {
	var (
		out domain.SettingsPatch
		d   = decoder{in: p}
	)
	out.Currency = decodeField[string](&d, "currency")
	out.UIMode = decodeField[domain.UIMode](&d, "ui_mode")
	if v, ok := decodeField[[]Category](&d, "categories").Get(); ok {
		out.Categories = domain.Set(categoriesDomain(v))
	}
	if v, ok := decodeField[CoupleMode](&d, "couple_mode").Get(); ok {
		out.CoupleMode = domain.Set(domain.CoupleMode(v))
	}
	return out, d.err
}

type encoder struct {
	out Patch
	err error
}

func encodeField[T any](e *encoder, key string, f domain.Field[T]) {
	v, ok := f.Get()
	if !ok || e.err != nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		e.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	e.out[key] = raw
}

type decoder struct {
	in  Patch
	err error
}

func decodeField[T any](d *decoder, key string) domain.Field[T] {
	raw, ok := d.in[key]
	if !ok || d.err != nil {
		return domain.Field[T]{}
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		d.err = fmt.Errorf("decode %s: %w", key, err)
		return domain.Field[T]{}
	}
	return domain.Set(v)
}

func nullable(f domain.Field[string]) domain.Field[*string] {
	v, ok := f.Get()
	if !ok {
		return domain.Field[*string]{}
	}
	return domain.Set(optional(v))
}

func nonNullable(f domain.Field[*string]) domain.Field[string] {
	v, ok := f.Get()
	if !ok {
		return domain.Field[string]{}
	}
	return domain.Set(deref(v))
}
