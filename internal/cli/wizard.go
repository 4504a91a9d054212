package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

type manualOrigin int

const (
	originEmbedded manualOrigin = iota
	originDisk
)

type originOption struct {
	Value manualOrigin
	Label string
}

var originOptions = []originOption{
	{
		Value: originEmbedded,
		Label: "Built-in: use the manual shipped with zt100 until a download succeeds.",
	},
	{
		Value: originDisk,
		Label: "File: use a PDF already on this machine as the fallback.",
	},
}

func defaultOriginLabel(o manualOrigin) string {
	for _, opt := range originOptions {
		if opt.Value == o {
			return opt.Label
		}
	}
	return ""
}

func originFromLabel(label string) manualOrigin {
	for _, opt := range originOptions {
		if opt.Label == label {
			return opt.Value
		}
	}
	return originEmbedded // safe default
}

func selectOrigin(defaultOrigin manualOrigin) (manualOrigin, error) {
	var selection string

	labels := make([]string, len(originOptions))
	for i, opt := range originOptions {
		labels[i] = opt.Label
	}

	prompt := &survey.Select{
		Message: "Which manual should be shown before the first download:",
		Options: labels,
		Default: defaultOriginLabel(defaultOrigin),
	}

	if err := survey.AskOne(prompt, &selection, survey.WithValidator(survey.Required)); err != nil {
		return 0, err
	}

	return originFromLabel(selection), nil
}

// httpURLValidator accepts absolute http(s) URLs
func httpURLValidator(val interface{}) error {
	str, ok := val.(string)
	if !ok {
		return errors.New("invalid input")
	}

	u, err := url.Parse(strings.TrimSpace(str))
	if err != nil {
		return errors.New("must be a URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must start with http:// or https://")
	}
	return nil
}

func provideURL(message string, defaultValue string) (string, error) {
	content := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &content, survey.WithValidator(httpURLValidator)); err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		content = defaultValue
	}

	return content, nil
}

func provideInput(message string, defaultValue string) (string, error) {
	content := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &content, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		content = defaultValue
	}

	return content, nil
}

func confirm(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return answer, nil
}
