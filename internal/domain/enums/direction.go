package enums

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)
