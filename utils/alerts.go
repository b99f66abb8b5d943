package utils

import (
	"fmt"
	"math"
)

// User-facing alert texts.
const (
	NotifyAngelErrorMessage = "Unable to notify angels. Please check your network connection and try again."
	FindUserErrorMessage    = "Failed to find user"
	GenericErrorMessage     = "Something went wrong. Please try again."
	NotifyTitle             = "Notify Angels"
)

// CooldownMessage tells the user how long to wait, given the remaining
// cooldown in hours. Minutes are rounded up and never shown as zero.
func CooldownMessage(remainingHours float64) string {
	// trim float noise so 6.0000000001 minutes still reads as 6
	minutes := int(math.Ceil(remainingHours*60 - 1e-6))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Please wait %d %s before asking for help again", minutes, unit)
}

// CountdownMessage is the confirmation prompt body while counting down.
func CountdownMessage(seconds int) string {
	return fmt.Sprintf("Notifying in %d seconds", seconds)
}
