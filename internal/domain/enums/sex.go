package enums

// Sex doubles as the search filter value: users are queued under the
// category they are looking for, and SexAny matches everything.
type Sex string

const (
	SexMale   Sex = "Мужчина"
	SexFemale Sex = "Женщина"
	SexAny    Sex = "Любой"
	SexUnset  Sex = "Не выбран"
)

func ParseSex(value string) (Sex, bool) {
	switch Sex(value) {
	case SexMale, SexFemale, SexAny:
		return Sex(value), true
	default:
		return SexUnset, false
	}
}
