package category

// System categories are backend-assigned tags with special semantics. The
// Unspecified category marks intentionally-incomplete expenses; Mileage and
// Per Diem expenses have their own creation flows and are excluded from
// randomized spend data.
const (
	SystemMileage     = "Mileage"
	SystemPerDiem     = "Per Diem"
	SystemUnspecified = "Unspecified"
	SystemOthers      = "Others"
	SystemActivity    = "Activity"
	SystemTrain       = "Train"
)

type Category struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	SubCategory    string `json:"sub_category,omitempty"`
	SystemCategory string `json:"system_category"`
	IsEnabled      bool   `json:"is_enabled"`
	Code           string `json:"code,omitempty"`
}
