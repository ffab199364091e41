// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"

	"github.com/dukex/stepflow/pkg/actions"
	"github.com/dukex/stepflow/pkg/actions/collect"
	"github.com/dukex/stepflow/pkg/actions/delay"
	"github.com/dukex/stepflow/pkg/actions/email"
	"github.com/dukex/stepflow/pkg/actions/extract"
	"github.com/dukex/stepflow/pkg/actions/filter"
	"github.com/dukex/stepflow/pkg/actions/httprequest"
	logaction "github.com/dukex/stepflow/pkg/actions/log"
	"github.com/dukex/stepflow/pkg/actions/notify"
	"github.com/dukex/stepflow/pkg/actions/prompt"
	"github.com/dukex/stepflow/pkg/actions/query"
	"github.com/dukex/stepflow/pkg/actions/row"
	"github.com/dukex/stepflow/pkg/actions/script"
	"github.com/dukex/stepflow/pkg/actions/subautomation"
	"github.com/dukex/stepflow/pkg/ai"
	"github.com/dukex/stepflow/pkg/mail"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/rows"
)

// Collaborators are the services built-in kinds talk to. Leave a field nil
// when it is not configured; kinds needing it fail at run time, never at
// registration, so definitions using them still validate.
type Collaborators struct {
	Rows       rows.Store
	Queries    query.Runner
	AI         ai.Provider
	Mailer     mail.Mailer
	HTTPClient *http.Client
}

func registerActionPlugins(reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry, c Collaborators) {
	client := c.HTTPClient
	if client == nil {
		client = actions.NewClient()
	}

	reg.RegisterAction(filter.NewActionFactory())
	reg.RegisterAction(collect.NewActionFactory())
	reg.RegisterAction(delay.NewActionFactory())
	reg.RegisterAction(script.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(email.NewActionFactory(c.Mailer))
	reg.RegisterAction(extract.NewActionFactory(c.AI, client))

	for _, factory := range query.Factories(c.Queries) {
		reg.RegisterAction(factory)
	}

	for _, factory := range row.Factories(c.Rows) {
		reg.RegisterAction(factory)
	}

	for _, factory := range notify.Factories(client) {
		reg.RegisterAction(factory)
	}

	for _, factory := range prompt.Factories(c.AI) {
		reg.RegisterAction(factory)
	}
}

// NewRegistry registers every built-in kind except triggerAutomation, which
// needs the service built on top of this registry (see RegisterSubAutomation),
// then the plugins found under pluginsPath.
func NewRegistry(log *slog.Logger, pluginsPath string, c Collaborators) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg, c)

	if pluginsPath != "" {
		if err := registerActionPlugins(reg, pluginsPath); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// RegisterSubAutomation registers triggerAutomation backed by runner.
func RegisterSubAutomation(reg *registry.Registry, runner subautomation.Runner) {
	reg.RegisterAction(subautomation.NewActionFactory(runner))
}
