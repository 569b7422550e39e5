package assistant

import (
	"fmt"

	"djuka/internal/action"
)

const (
	replyActivated   = "Tu sam! Kako mogu da ti pomognem?"
	replyDeactivated = "Nema na čemu! Pozovi me kad ti zatrebam."
	replyNudge       = `Reci "Gdje si Djuka" da aktiviraš asistenta.`

	replyToggledOn  = "Asistent aktiviran."
	replyToggledOff = "Asistent deaktiviran."

	askWhoToCall     = "Koga želiš da pozovem?"
	askWhomAndWhat   = "Kome i šta želiš da pošaljem?"
	askWhereTo       = "Gdje želiš da ideš?"
	askWhatToSearch  = "Šta želiš da pretražim?"
	replyDemoAnswer  = "Evo odgovora (demo)."
	replyOracleSorry = "Izvini, imam problem sa odgovorom. Pokušaj ponovo."

	NoticeCaptureFailed = "Problem s prepoznavanjem glasa. Pokušaj ponovno."
)

var askChannel = fmt.Sprintf("Izaberi servis: %s.", action.OfferedLabels())

func replyNavigating(dest string) string {
	return fmt.Sprintf("Otvaram Google Maps za %s", dest)
}

func replySearching(q string) string {
	return fmt.Sprintf("Pretražujem %s", q)
}

func replyResolved(ex action.Executable) string {
	if ex.Kind == action.KindMessage {
		return fmt.Sprintf("Šaljem poruku za %s preko %s", ex.Contact, ex.Channel)
	}
	return fmt.Sprintf("Pozivam %s preko %s", ex.Contact, ex.Channel)
}

func noticeCannotOpen(ex action.Executable) string {
	return fmt.Sprintf("Ne mogu da otvorim %s", ex.Target())
}
