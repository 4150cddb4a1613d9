package tx

// SetOnStage installs a hook called at each commit stage.
func (m *Manager) SetOnStage(fn func(Stage) error) { m.onStage = fn }
