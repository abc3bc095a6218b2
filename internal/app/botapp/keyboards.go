package botapp

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnSearch    = "Поиск собеседника🔎"
	btnChangeSex = "Сменить пол✏️"
	btnNext      = "Новый собеседник♻️"
	btnEnd       = "Закончить диалог❌"
	btnProfile   = "Профиль👤"
	btnComplain  = "Пожаловаться🚨"

	cbSearchSexPrefix  = "choise_sex_"
	cbProfileSexPrefix = "set_sex_"
	cbNextPartner      = "next_partner"
	cbEndChat          = "end_chat"
	cbComplainPartner  = "complain_partner"
	cbEditSex          = "edit_sex"
	cbEditAge          = "edit_age"
	cbEditInterests    = "edit_interests"
	cbBecomeVIP        = "become_vip"

	msgMainMenu          = "💻 Главное меню"
	msgBanned            = "⛔ Вы заблокированы."
	msgWhoToSearch       = "❓ Кого будем искать?"
	msgQueued            = "Вы добавлены в очередь. Ждите собеседника..."
	msgSearching         = "⏳ Поиск собеседника... Ожидание."
	msgPartnerFound      = "✅ Собеседник найден. Общайтесь!"
	msgDialogEnded       = "❌ Диалог окончен"
	msgSearchingNew      = "Ищем нового собеседника..."
	msgNotInChat         = "Вы сейчас не в чате."
	msgPartnerGone       = "⛔ Ваш собеседник недоступен. Диалог завершён."
	msgTooFast           = "⛔ Вы отправляете сообщения слишком быстро. Подождите немного."
	msgFileTooBig        = "Файл слишком большой."
	msgBadFileType       = "Неподдерживаемый тип файла."
	msgSendFailed        = "Произошла ошибка при отправке сообщения."
	msgChooseSex         = "Выберите пол"
	msgAskAge            = "Напишите ваш возраст (числом)."
	msgBadAge            = "Возраст должен быть числом от 5 до 120."
	msgAskInterests      = "Перечислите интересы через запятую."
	msgInterestsUpdated  = "Интересы обновлены."
	msgNowVIP            = "⭐ Вы теперь VIP!"
	msgComplaintAccepted = "Жалоба отправлена админу. Спасибо."
	msgAskComplaint      = "Напишите id пользователя или опишите проблему."
	msgNoAccess          = "Нет доступа."
)

func kbMain() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSearch),
			tgbotapi.NewKeyboardButton(btnChangeSex),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnNext),
			tgbotapi.NewKeyboardButton(btnEnd),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnProfile),
			tgbotapi.NewKeyboardButton(btnComplain),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func kbProfile() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Изменить пол", cbEditSex),
			tgbotapi.NewInlineKeyboardButtonData("Возраст", cbEditAge),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Интересы", cbEditInterests),
			tgbotapi.NewInlineKeyboardButtonData("Стать VIP", cbBecomeVIP),
		),
	)
}

func kbDialog() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Следующий собеседник♻️", cbNextPartner),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Завершить чат❌", cbEndChat),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Пожаловаться🚨", cbComplainPartner),
		),
	)
}

// kbChooseSex builds the sex picker; the prefix distinguishes the search
// filter flow from the profile edit flow.
func kbChooseSex(prefix string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Мужчина", prefix+"Мужчина"),
			tgbotapi.NewInlineKeyboardButtonData("Женщина", prefix+"Женщина"),
			tgbotapi.NewInlineKeyboardButtonData("Любой", prefix+"Любой"),
		),
	)
}
