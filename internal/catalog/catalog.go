// Package catalog declares the panel's master-data entities: how each one is
// edited and where its list lives.
package catalog

import (
	"sort"

	"github.com/frahmantamala/trading-panel/internal/form"
	"github.com/frahmantamala/trading-panel/internal/listfetch"
	"github.com/frahmantamala/trading-panel/internal/upstream"
)

const statusActive = "Active"

type Definition struct {
	Slug string
	// Form is nil for list-only entities.
	Form *form.Entity
	List listfetch.Source
}

type Catalog struct {
	defs map[string]Definition
}

func New(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Slug] = d
	}
	return c
}

// Default holds state, scheme, item-category, item-box and invoice.
func Default() *Catalog {
	return New(State(), Scheme(), ItemCategory(), ItemBox(), Invoice())
}

func (c *Catalog) FormEntity(slug string) (*form.Entity, bool) {
	d, ok := c.defs[slug]
	if !ok || d.Form == nil {
		return nil, false
	}
	return d.Form, true
}

func (c *Catalog) ListSource(slug string) (listfetch.Source, bool) {
	d, ok := c.defs[slug]
	if !ok {
		return listfetch.Source{}, false
	}
	return d.List, true
}

func (c *Catalog) Slugs() []string {
	slugs := make([]string, 0, len(c.defs))
	for slug := range c.defs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func listSource(slug, page, pageURL string) listfetch.Source {
	return listfetch.Source{
		Tag:     slug,
		Path:    upstream.ListPath(slug),
		Page:    page,
		PageURL: pageURL,
	}
}

func State() Definition {
	return Definition{
		Slug: "state",
		Form: &form.Entity{
			Name:        "State",
			Slug:        "state",
			Tag:         "state",
			ResponseKey: "state",
			Fields: []form.Field{
				{Key: "state_name", Label: "State Name"},
				{Key: "state_no", Label: "State No", Filter: form.Digits},
				{Key: "state_status", Label: "Status", Default: statusActive},
			},
			Required: map[form.Mode][]form.Requirement{
				form.ModeCreate: {
					{Label: "State Name", Key: "state_name"},
					{Label: "State No", Key: "state_no"},
				},
				form.ModeEdit: {
					{Label: "State Name", Key: "state_name"},
					{Label: "State No", Key: "state_no"},
					{Label: "Status", Key: "state_status"},
				},
			},
			CreateAction: "StateCreate",
			EditAction:   "StateEdit",
		},
		List: listSource("state", "State", "/master/state"),
	}
}

func Scheme() Definition {
	required := []form.Requirement{
		{Label: "Scheme Name", Key: "scheme_name"},
		{Label: "Tax", Key: "scheme_tax"},
		{Label: "Status", Key: "scheme_status"},
	}
	return Definition{
		Slug: "scheme",
		Form: &form.Entity{
			Name:        "Scheme",
			Slug:        "scheme",
			Tag:         "scheme",
			ResponseKey: "scheme",
			Fields: []form.Field{
				{Key: "scheme_name", Label: "Scheme Name"},
				{Key: "scheme_tax", Label: "Tax", Kind: form.KindDecimal, Filter: form.Decimal},
				{Key: "scheme_status", Label: "Status", Default: statusActive},
			},
			Required: map[form.Mode][]form.Requirement{
				form.ModeCreate: required,
				form.ModeEdit:   required,
			},
			CreateAction: "SchemeCreate",
			EditAction:   "SchemeEdit",
		},
		List: listSource("scheme", "Scheme", "/master/scheme"),
	}
}

func ItemCategory() Definition {
	required := []form.Requirement{{Label: "Item Category", Key: "item_category"}}
	return Definition{
		Slug: "item-category",
		Form: &form.Entity{
			Name:        "Item Category",
			Slug:        "item-category",
			Tag:         "item-category",
			ResponseKey: "item_category",
			Fields: []form.Field{
				{Key: "item_category", Label: "Item Category"},
				{Key: "item_category_status", Label: "Status", Default: statusActive},
			},
			Required: map[form.Mode][]form.Requirement{
				form.ModeCreate: required,
				form.ModeEdit:   required,
			},
			CreateAction: "ItemCategoryCreate",
			EditAction:   "ItemCategoryEdit",
		},
		List: listSource("item-category", "Item Category", "/master/item-category"),
	}
}

func ItemBox() Definition {
	return Definition{
		Slug: "item-box",
		Form: &form.Entity{
			Name:        "Item Box",
			Slug:        "item-box",
			Tag:         "item-box",
			ResponseKey: "item_box",
			Fields: []form.Field{
				{Key: "item_box", Label: "Item Box", Filter: form.Dimension},
				{Key: "item_weight", Label: "Weight", Kind: form.KindDecimal, Filter: form.Decimal},
				{Key: "item_box_status", Label: "Status", Default: statusActive},
			},
			Required: map[form.Mode][]form.Requirement{
				form.ModeCreate: {
					{Label: "Item Box", Key: "item_box"},
					{Label: "Weight", Key: "item_weight"},
				},
				form.ModeEdit: {
					{Label: "Item Box", Key: "item_box"},
					{Label: "Weight", Key: "item_weight"},
					{Label: "Status", Key: "item_box_status"},
				},
			},
			CreateAction: "ItemBoxCreate",
			EditAction:   "ItemBoxEdit",
		},
		List: listSource("item-box", "Item Box", "/master/item-box"),
	}
}

func Invoice() Definition {
	src := listSource("invoice", "Invoice", "/invoice")
	src.Summarize = SummarizeInvoices
	return Definition{Slug: "invoice", List: src}
}
