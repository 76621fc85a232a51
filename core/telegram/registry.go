package telegram

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/commands"
)

// Registry is the set of slash commands the bot listens on. It only carries
// menu metadata; what a command does is decided by the dialogue routes.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string // "/alias" -> canonical name
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name, which must start with '/'. Invalid and
// duplicate registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	if r == nil {
		return
	}
	var cause string
	switch {
	case name == "" || cmd.Description == "":
		cause = "invalid"
	case !strings.HasPrefix(name, "/"):
		cause = "no_slash_prefix"
	case r.known(name):
		cause = "duplicate"
	}
	if cause != "" {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("key", name),
			slog.String("cause", cause),
		)
		return
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		if a := slashed(alias); !r.known(a) {
			r.aliases[a] = name
		}
	}
}

func (r *Registry) known(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

// ListCommands returns the menu sorted by command text. With visibleOnly set,
// hidden commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[name]
		if visibleOnly && !cmd.InMenu() {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	return list
}

// CommandNames returns every endpoint to listen on, aliases included, sorted.
func (r *Registry) CommandNames() []string {
	names := slices.Collect(maps.Keys(r.commands))
	names = slices.AppendSeq(names, maps.Keys(r.aliases))
	slices.Sort(names)
	return names
}

// LookupCommand resolves name or one of its aliases, with or without the slash.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slashed(name)
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// InitBotCommands publishes the visible commands as the bot's menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	ctx := context.Background()
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "tg.wire", "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(list)),
	)
}
