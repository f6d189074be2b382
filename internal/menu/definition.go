package menu

// Default is the static panel navigation. Titles and urls must match the page
// grants issued by the backend.
func Default() []Item {
	return []Item{
		{Title: "Dashboard", URL: "/dashboard", Icon: "home"},
		{
			Title: "Master",
			URL:   "/master",
			Icon:  "database",
			Children: []Item{
				{Title: "State", URL: "/master/state"},
				{Title: "Scheme", URL: "/master/scheme"},
				{Title: "Item Category", URL: "/master/item-category"},
				{Title: "Item Box", URL: "/master/item-box"},
			},
		},
		{Title: "Invoice", URL: "/invoice", Icon: "receipt"},
	}
}
