package engine

import (
	"fmt"
	"strings"
)

// Message identifies a localized reply text.
type Message int

const (
	MsgConsentPrompt Message = iota
	MsgYes
	MsgNo
	MsgDeclined
	MsgAskName
	MsgSkip
	MsgAskMedia
	MsgMediaAdded
	MsgNext
	MsgUnsupportedMedia
	MsgNeedMedia
	MsgAskDate
	MsgToday
	MsgBadDate
	MsgAskLocation
	MsgBadLocation
	MsgSaved
	MsgPartiallySaved
	MsgSaveFailed
	MsgNothingSaved
	MsgAskMore
	MsgAddAnother
	MsgFinish
	MsgThanks
	MsgCancelled
	MsgNothingToCancel
	MsgHelp
	MsgLanguageSet
	MsgUnknownLanguage
	MsgExportDenied
	MsgExportEmpty
	MsgExportFailed
	MsgExportReady
)

const DefaultLanguage = "ru"

// Languages lists the supported reply languages.
var Languages = []string{"ru", "kz", "en"}

var catalog = map[string]map[Message]string{
	"ru": {
		MsgConsentPrompt:    "Привет! Этот бот собирает наблюдения за опылителями 🐝 для научного проекта. Вы согласны на обработку и хранение отправленных данных (фото, дата, место, имя)?",
		MsgYes:              "Да",
		MsgNo:               "Нет",
		MsgDeclined:         "Хорошо, без согласия мы не сохраняем данные. Если передумаете, отправьте /start.",
		MsgAskName:          "Спасибо! Как вас зовут? Имя попадёт в таблицу наблюдений. Этот шаг можно пропустить.",
		MsgSkip:             "Пропустить",
		MsgAskMedia:         "Отправьте фото или видео опылителя 🐝 Можно несколько. Когда закончите, нажмите «Далее».",
		MsgMediaAdded:       "Файл принят (%d). Отправьте ещё или нажмите «Далее».",
		MsgNext:             "Далее",
		MsgUnsupportedMedia: "Этот файл не похож на фото или видео. Отправьте изображение или видео.",
		MsgNeedMedia:        "Сначала отправьте хотя бы одно фото или видео.",
		MsgAskDate:          "Укажите дату и время наблюдения в формате ДД-ММ-ГГГГ ЧЧ:ММ (например, 13-04-2025 15:30) или нажмите «Сегодня».",
		MsgToday:            "Сегодня",
		MsgBadDate:          "Не удалось распознать дату. Используйте формат ДД-ММ-ГГГГ ЧЧ:ММ, например 13-04-2025 15:30.",
		MsgAskLocation:      "Теперь отправьте геолокацию или напишите адрес места наблюдения (можно координаты: 43.2220, 76.8512).",
		MsgBadLocation:      "Отправьте геолокацию или напишите адрес текстом.",
		MsgSaved:            "Наблюдение сохранено! Записей: %d. Спасибо 💚",
		MsgPartiallySaved:   "Сохранено %d из %d записей. Остальные сохранить не удалось, отправьте их ещё раз.",
		MsgSaveFailed:       "Не удалось сохранить наблюдение. Попробуйте позже.",
		MsgNothingSaved:     "Медиафайлы не были прикреплены, сохранять нечего.",
		MsgAskMore:          "Добавить ещё одно наблюдение или завершить?",
		MsgAddAnother:       "Добавить ещё",
		MsgFinish:           "Завершить",
		MsgThanks:           "Спасибо за участие! Чтобы начать заново, отправьте /start.",
		MsgCancelled:        "Диалог отменён.",
		MsgNothingToCancel:  "Нечего отменять. Отправьте /start, чтобы начать.",
		MsgHelp:             "Команды:\n/start — новое наблюдение\n/cancel — отменить текущий диалог\n/lang ru|kz|en — язык ответов\n/export — выгрузка (только для администраторов)",
		MsgLanguageSet:      "Язык ответов: русский.",
		MsgUnknownLanguage:  "Доступные языки: ru, kz, en.",
		MsgExportDenied:     "У вас нет прав для выполнения этой команды.",
		MsgExportEmpty:      "Наблюдений пока нет.",
		MsgExportFailed:     "Не удалось сформировать выгрузку. Попробуйте позже.",
		MsgExportReady:      "Выгрузка наблюдений: %d записей.",
	},
	"kz": {
		MsgConsentPrompt:    "Сәлем! Бұл бот ғылыми жоба үшін тозаңдандырушыларды бақылау деректерін жинайды 🐝 Жіберілген деректерді (фото, күні, орны, аты-жөні) өңдеуге және сақтауға келісесіз бе?",
		MsgYes:              "Иә",
		MsgNo:               "Жоқ",
		MsgDeclined:         "Жақсы, келісімсіз деректерді сақтамаймыз. Ойыңыз өзгерсе, /start жіберіңіз.",
		MsgAskName:          "Рахмет! Атыңыз кім? Аты-жөніңіз бақылаулар кестесіне жазылады. Бұл қадамды өткізіп жіберуге болады.",
		MsgSkip:             "Өткізу",
		MsgAskMedia:         "Тозаңдандырушының фотосын немесе бейнесін жіберіңіз 🐝 Бірнешеуін жіберуге болады. Аяқтағанда «Келесі» батырмасын басыңыз.",
		MsgMediaAdded:       "Файл қабылданды (%d). Тағы жіберіңіз немесе «Келесі» басыңыз.",
		MsgNext:             "Келесі",
		MsgUnsupportedMedia: "Бұл файл фото немесе бейнеге ұқсамайды. Сурет немесе бейне жіберіңіз.",
		MsgNeedMedia:        "Алдымен кем дегенде бір фото немесе бейне жіберіңіз.",
		MsgAskDate:          "Бақылау күні мен уақытын КК-АА-ЖЖЖЖ СС:ММ форматында жазыңыз (мысалы, 13-04-2025 15:30) немесе «Бүгін» батырмасын басыңыз.",
		MsgToday:            "Бүгін",
		MsgBadDate:          "Күнді тану мүмкін болмады. КК-АА-ЖЖЖЖ СС:ММ форматын қолданыңыз, мысалы 13-04-2025 15:30.",
		MsgAskLocation:      "Енді геолокацияны жіберіңіз немесе бақылау орнының мекенжайын жазыңыз (координаттар да болады: 43.2220, 76.8512).",
		MsgBadLocation:      "Геолокацияны жіберіңіз немесе мекенжайды мәтінмен жазыңыз.",
		MsgSaved:            "Бақылау сақталды! Жазбалар саны: %d. Рахмет 💚",
		MsgPartiallySaved:   "%d / %d жазба сақталды. Қалғандарын сақтау мүмкін болмады, оларды қайта жіберіңіз.",
		MsgSaveFailed:       "Бақылауды сақтау мүмкін болмады. Кейінірек қайталап көріңіз.",
		MsgNothingSaved:     "Медиафайлдар тіркелмеді, сақтайтын ештеңе жоқ.",
		MsgAskMore:          "Тағы бір бақылау қосасыз ба, әлде аяқтайсыз ба?",
		MsgAddAnother:       "Тағы қосу",
		MsgFinish:           "Аяқтау",
		MsgThanks:           "Қатысқаныңызға рахмет! Қайта бастау үшін /start жіберіңіз.",
		MsgCancelled:        "Диалог тоқтатылды.",
		MsgNothingToCancel:  "Тоқтататын ештеңе жоқ. Бастау үшін /start жіберіңіз.",
		MsgHelp:             "Командалар:\n/start — жаңа бақылау\n/cancel — ағымдағы диалогты тоқтату\n/lang ru|kz|en — жауап тілі\n/export — экспорт (тек әкімшілер үшін)",
		MsgLanguageSet:      "Жауап тілі: қазақша.",
		MsgUnknownLanguage:  "Қолжетімді тілдер: ru, kz, en.",
		MsgExportDenied:     "Бұл команданы орындауға құқығыңыз жоқ.",
		MsgExportEmpty:      "Әзірге бақылаулар жоқ.",
		MsgExportFailed:     "Экспортты дайындау мүмкін болмады. Кейінірек қайталап көріңіз.",
		MsgExportReady:      "Бақылаулар экспорты: %d жазба.",
	},
	"en": {
		MsgConsentPrompt:    "Hi! This bot collects pollinator observations 🐝 for a citizen-science project. Do you agree to the processing and storage of the data you send (photo, date, place, name)?",
		MsgYes:              "Yes",
		MsgNo:               "No",
		MsgDeclined:         "Okay, nothing is stored without consent. Send /start if you change your mind.",
		MsgAskName:          "Thank you! What is your name? It will appear in the observation table. You can skip this step.",
		MsgSkip:             "Skip",
		MsgAskMedia:         "Send a photo or video of the pollinator 🐝 You can send several. Press \"Next\" when you are done.",
		MsgMediaAdded:       "File received (%d). Send more or press \"Next\".",
		MsgNext:             "Next",
		MsgUnsupportedMedia: "This file does not look like a photo or video. Please send an image or a video.",
		MsgNeedMedia:        "Please send at least one photo or video first.",
		MsgAskDate:          "Enter the date and time of the observation as DD-MM-YYYY HH:MM (for example 13-04-2025 15:30) or press \"Today\".",
		MsgToday:            "Today",
		MsgBadDate:          "Could not read the date. Use the DD-MM-YYYY HH:MM format, for example 13-04-2025 15:30.",
		MsgAskLocation:      "Now share your location or type the address of the observation place (coordinates work too: 43.2220, 76.8512).",
		MsgBadLocation:      "Share a location or type the address as text.",
		MsgSaved:            "Observation saved! Records: %d. Thank you 💚",
		MsgPartiallySaved:   "Saved %d of %d records. The rest could not be saved, please send them again.",
		MsgSaveFailed:       "Could not save the observation. Please try again later.",
		MsgNothingSaved:     "No media was attached, nothing to save.",
		MsgAskMore:          "Add another observation or finish?",
		MsgAddAnother:       "Add another",
		MsgFinish:           "Finish",
		MsgThanks:           "Thanks for taking part! Send /start to begin again.",
		MsgCancelled:        "Conversation cancelled.",
		MsgNothingToCancel:  "Nothing to cancel. Send /start to begin.",
		MsgHelp:             "Commands:\n/start — new observation\n/cancel — cancel the current conversation\n/lang ru|kz|en — reply language\n/export — export (administrators only)",
		MsgLanguageSet:      "Reply language: English.",
		MsgUnknownLanguage:  "Available languages: ru, kz, en.",
		MsgExportDenied:     "You are not allowed to run this command.",
		MsgExportEmpty:      "There are no observations yet.",
		MsgExportFailed:     "Could not build the export. Please try again later.",
		MsgExportReady:      "Observation export: %d records.",
	},
}

// Text returns the localized message, formatted with args when given.
// Unknown languages fall back to DefaultLanguage.
func Text(lang string, msg Message, args ...any) string {
	table, ok := catalog[lang]
	if !ok {
		table = catalog[DefaultLanguage]
	}
	text := table[msg]
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

// NormalizeLanguage maps user or platform language codes onto a supported language.
func NormalizeLanguage(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "ru":
		return "ru", true
	case "kz", "kk":
		return "kz", true
	case "en":
		return "en", true
	default:
		return "", false
	}
}
