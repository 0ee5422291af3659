package web

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const flashCookie = "mail2tasks_flash"

// Flash categories, used as CSS classes by the templates.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashWarning = "warning"
	flashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

func setFlash(c *gin.Context, category, message string) {
	c.SetCookie(flashCookie, category+"|"+message, 60, "/", "", false, true)
}

// popFlash reads and clears the pending flash, if any.
func popFlash(c *gin.Context) *Flash {
	value, err := c.Cookie(flashCookie)
	if err != nil || value == "" {
		return nil
	}
	c.SetCookie(flashCookie, "", -1, "/", "", false, true)

	category, message, ok := strings.Cut(value, "|")
	if !ok {
		return &Flash{Category: flashInfo, Message: value}
	}
	return &Flash{Category: category, Message: message}
}
