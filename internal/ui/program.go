package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ErrorModel is a model that can end with an error of its own.
type ErrorModel interface {
	tea.Model
	Err() error
}

// Run runs model until it quits and returns the model's error, unless the
// program itself failed.
func Run(model ErrorModel, options ...tea.ProgramOption) (tea.Model, error) {
	final, err := tea.NewProgram(model, options...).Run()
	if err != nil {
		return final, err
	}
	if errorModel, ok := final.(ErrorModel); ok {
		return final, errorModel.Err()
	}
	return final, nil
}
