package bot

import (
	"fmt"
	"time"
)

// User-facing copy. The bot talks Russian, matching its audience.
const (
	textAlreadyActive = "Не переживай, новый выпуск прилетит под елочку сегодня в %s, Санта помнит о тебе ☃️"
	textWelcomeBack   = "С возвращением! Теперь у тебя снова будет по одному новому выпуску каждый день, в %s по Москве ⛄"
	textIntro         = "Привет! 🎄\n\nДо Нового года %s %d %s. Мы собрали адвент-календарь из наших лучших выпусков.\n\nКаждый день ровно в %s я буду отправлять один из них. Вспомним все самое крутое!"
	textWelcomeOffer  = "Хочешь получить первый выпуск уже сейчас? Заодно расскажу тебе о нем то, о чем мы ни разу не говорили публично"
	textWelcomeMissing = "Пока первый выпуск не настроен, но я пришлю его, как только он появится!"
	textFinalOffer    = "Такие истории я буду рассказывать тебе каждый день вплоть до Нового года. Один день, одна история, один выпуск. По рукам?"
	textFinalYes      = "Тогда по рукам! Следующий выпуск прилетит к тебе под елочку уже сегодня, примерно в %s по Москве. Ну а если захочешь отписаться от этих сообщений, пиши /stop"
	textFinalNo       = "Жаль... Тогда не буду надоедать тебе своими сообщениями. Но если захочешь получать выпуски с нашими историями, нажми /start еще раз"
	textAlreadyStopped = "🐧 Не переживай, я больше не буду отправлять тебе новые выпуски"
	textStopped       = "🐧 Хорошо, больше писать не буду. Но если захочешь снова получать наши самые лучшие выпуски, пиши /start"
	textSchedulePrompt = "Хорошо, жду от тебя новогодний пост 🎄"
	textWelcomePrompt = "Пришли мне первый пост, который я буду отправлять после приветствия 🌟"
	textNeedMedia     = "Нужно прислать фото или видео"
	textWelcomeSaved  = "Запомнил стартовый пост! Теперь буду делиться им с новыми подписчиками ✨"
	textCalendarFull  = "Все даты заняты!"
	textScheduled     = "Запомнил! Опубликую его в ближайший доступный день: %s в %s"
	textCalendarDone  = "Ура, адвент-календарь завершен! ☃️"

	btnWelcomeYes  = "⛄ Да!"
	btnWelcomeYes2 = "🎇 Конечно!"
	btnFinalYes    = "🎄 Давай!"
	btnFinalNo     = "❄️ Не хочу :("

	cbWelcomeYes = "init_yes"
	cbFinalYes   = "final_yes"
	cbFinalNo    = "final_no"
)

const slotDateFormat = "02.01.2006"

// daysUntilNewYear counts whole days from now to the next January 1st.
func daysUntilNewYear(now time.Time) int {
	target := time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := 0
	for d := today; d.Before(target); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// russianDayWord picks the declension of "день" for a count.
func russianDayWord(n int) string {
	if r := n % 100; r >= 11 && r <= 14 {
		return "дней"
	}
	switch n % 10 {
	case 1:
		return "день"
	case 2, 3, 4:
		return "дня"
	default:
		return "дней"
	}
}

// russianRemainingVerb agrees "остался/осталось" with a count.
func russianRemainingVerb(n int) string {
	if r := n % 100; r >= 11 && r <= 14 {
		return "осталось"
	}
	if n%10 == 1 {
		return "остался"
	}
	return "осталось"
}

func introText(now time.Time, clock string) string {
	days := daysUntilNewYear(now)
	return fmt.Sprintf(textIntro, russianRemainingVerb(days), days, russianDayWord(days), clock)
}
