package request

type LayoutSeat struct {
	Row    int    `json:"row" validate:"required,min=1"`
	Column int    `json:"column" validate:"required,min=1"`
	Grade  string `json:"grade" validate:"required,max=32"`
}

type UpdateLayoutRequest struct {
	Seats []LayoutSeat `json:"seats" validate:"required,min=1,max=5000,dive"`
}
