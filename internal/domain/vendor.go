package domain

// Records returned by the POS vendor API. Only the fields the backend reads are
// modelled; unknown fields are ignored on decode.

type Address struct {
	Address1  string `json:"address1,omitempty"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city,omitempty"`
	StateCode string `json:"stateCode,omitempty"`
	ZipCode   string `json:"zipCode,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type RestaurantGeneral struct {
	Name         string `json:"name"`
	LocationName string `json:"locationName,omitempty"`
	Description  string `json:"description,omitempty"`
	TimeZone     string `json:"timeZone,omitempty"`
	CloseoutHour int    `json:"closeoutHour"`
}

type Restaurant struct {
	GUID     string            `json:"guid" validate:"required"`
	General  RestaurantGeneral `json:"general"`
	Location Address           `json:"location"`
}

// DisplayName prefers the restaurant name and falls back to the location name.
func (r Restaurant) DisplayName() string {
	if r.General.Name != "" {
		return r.General.Name
	}
	return r.General.LocationName
}

type MenuItem struct {
	GUID        string  `json:"guid" validate:"required"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Price       float64 `json:"price"`
	Visibility  string  `json:"visibility,omitempty"`
	IsArchived  bool    `json:"isArchived"`
	// Group is filled in while flattening the menu tree; it is not sent by the vendor.
	Group string `json:"group,omitempty"`
}

type MenuGroup struct {
	GUID       string      `json:"guid" validate:"required"`
	Name       string      `json:"name"`
	MenuItems  []MenuItem  `json:"menuItems" validate:"dive"`
	MenuGroups []MenuGroup `json:"menuGroups,omitempty" validate:"dive"`
}

type Menu struct {
	GUID       string      `json:"guid" validate:"required"`
	Name       string      `json:"name"`
	MenuGroups []MenuGroup `json:"menuGroups" validate:"dive"`
}

// FlattenMenuItems walks menus, groups and nested groups and returns every item
// in document order.
func FlattenMenuItems(menus []Menu) []MenuItem {
	items := make([]MenuItem, 0)
	var walk func(groups []MenuGroup)
	walk = func(groups []MenuGroup) {
		for _, group := range groups {
			for _, item := range group.MenuItems {
				item.Group = group.Name
				items = append(items, item)
			}
			walk(group.MenuGroups)
		}
	}
	for _, menu := range menus {
		walk(menu.MenuGroups)
	}
	return items
}

type EntityRef struct {
	GUID string `json:"guid"`
	Name string `json:"name,omitempty"`
}

type Payment struct {
	GUID      string     `json:"guid"`
	Type      string     `json:"type"`
	Amount    float64    `json:"amount"`
	TipAmount float64    `json:"tipAmount"`
	CardType  string     `json:"cardType,omitempty"`
	PaidDate  VendorTime `json:"paidDate,omitzero"`
}

type Selection struct {
	GUID        string     `json:"guid"`
	DisplayName string     `json:"displayName,omitempty"`
	Item        *EntityRef `json:"item,omitempty"`
	Quantity    float64    `json:"quantity"`
	Price       float64    `json:"price"`
	Tax         float64    `json:"tax"`
	Voided      bool       `json:"voided"`
}

// Name resolves the label used when ranking items.
func (s Selection) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Item != nil && s.Item.Name != "" {
		return s.Item.Name
	}
	return "Unknown item"
}

// Key identifies the underlying menu item, falling back to the display name.
func (s Selection) Key() string {
	if s.Item != nil && s.Item.GUID != "" {
		return s.Item.GUID
	}
	return s.Name()
}

type CheckCustomer struct {
	GUID      string `json:"guid"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Check struct {
	GUID        string         `json:"guid"`
	Deleted     bool           `json:"deleted"`
	Voided      bool           `json:"voided"`
	Amount      float64        `json:"amount"`
	TaxAmount   float64        `json:"taxAmount"`
	TotalAmount float64        `json:"totalAmount"`
	Customer    *CheckCustomer `json:"customer,omitempty"`
	Selections  []Selection    `json:"selections,omitempty"`
	Payments    []Payment      `json:"payments,omitempty"`
}

type Order struct {
	GUID              string       `json:"guid" validate:"required"`
	DisplayNumber     string       `json:"displayNumber,omitempty"`
	Source            string       `json:"source,omitempty"`
	BusinessDate      BusinessDate `json:"businessDate"`
	OpenedDate        VendorTime   `json:"openedDate,omitzero"`
	ClosedDate        VendorTime   `json:"closedDate,omitzero"`
	PaidDate          VendorTime   `json:"paidDate,omitzero"`
	Deleted           bool         `json:"deleted"`
	Voided            bool         `json:"voided"`
	NumberOfGuests    int          `json:"numberOfGuests"`
	RestaurantService string       `json:"restaurantService,omitempty"`
	DiningOption      *EntityRef   `json:"diningOption,omitempty"`
	RevenueCenter     *EntityRef   `json:"revenueCenter,omitempty"`
	Checks            []Check      `json:"checks,omitempty"`
}

// Excluded reports whether the order must be left out of sales figures.
func (o Order) Excluded() bool {
	return o.Deleted || o.Voided
}

type Customer struct {
	GUID      string `json:"guid" validate:"required"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Employee struct {
	GUID          string      `json:"guid" validate:"required"`
	FirstName     string      `json:"firstName,omitempty"`
	LastName      string      `json:"lastName,omitempty"`
	Email         string      `json:"email,omitempty"`
	ExternalID    string      `json:"externalEmployeeId,omitempty"`
	Deleted       bool        `json:"deleted"`
	JobReferences []EntityRef `json:"jobReferences,omitempty"`
}

type Shift struct {
	GUID     string     `json:"guid" validate:"required"`
	Employee *EntityRef `json:"employeeReference,omitempty"`
	Job      *EntityRef `json:"jobReference,omitempty"`
	InDate   VendorTime `json:"inDate,omitzero"`
	OutDate  VendorTime `json:"outDate,omitzero"`
	Deleted  bool       `json:"deleted"`
}

type TimeEntry struct {
	GUID          string       `json:"guid" validate:"required"`
	Employee      *EntityRef   `json:"employeeReference,omitempty"`
	Job           *EntityRef   `json:"jobReference,omitempty"`
	InDate        VendorTime   `json:"inDate,omitzero"`
	OutDate       VendorTime   `json:"outDate,omitzero"`
	RegularHours  float64      `json:"regularHours"`
	OvertimeHours float64      `json:"overtimeHours"`
	BusinessDate  BusinessDate `json:"businessDate"`
	Deleted       bool         `json:"deleted"`
}

// ConfigEntity covers the restaurant configuration lists (tax rates, dining
// options, tables, discounts, service charges, revenue centers). The vendor
// shapes differ per list; the common fields are decoded and the rest kept raw.
type ConfigEntity struct {
	GUID       string         `json:"guid" validate:"required"`
	Name       string         `json:"name,omitempty"`
	EntityType string         `json:"entityType,omitempty"`
	Extra      map[string]any `json:"-"`
}

type StockCount struct {
	GUID     string   `json:"guid" validate:"required"`
	Status   string   `json:"status"`
	Quantity *float64 `json:"quantity,omitempty"`
}
