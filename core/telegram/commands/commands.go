// Package commands describes slash commands offered in the bot menu.
package commands

// Command is the menu entry for one slash command. Aliases are extra
// endpoints routed like the command itself and never shown in the menu.
type Command struct {
	Description string
	Hidden      bool
	Aliases     []string
}

// InMenu reports whether the command belongs in the Telegram command menu.
func (c Command) InMenu() bool {
	return !c.Hidden && c.Description != ""
}
