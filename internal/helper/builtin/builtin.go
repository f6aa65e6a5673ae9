package builtin

import "github.com/nextlevelbuilder/helperd/internal/helper"

// All returns one instance of every builtin helper.
func All() []helper.Helper {
	return []helper.Helper{
		CheckIn{},
		Weathery{},
		BusAlerts{},
		RulesUpdater{},
		CriticalPusher{},
	}
}
