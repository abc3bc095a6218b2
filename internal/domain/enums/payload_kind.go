package enums

type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadPhoto    PayloadKind = "photo"
	PayloadVoice    PayloadKind = "voice"
	PayloadDocument PayloadKind = "document"
	PayloadSticker  PayloadKind = "sticker"
	PayloadVideo    PayloadKind = "video"
	PayloadOther    PayloadKind = "other"
)
