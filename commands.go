// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"fmt"
	"slices"
	"strings"
)

// Setting maps a logical setting name to its SCPI templates. Get and Set
// are fmt format strings; Set receives the value as its last argument, after
// any address arguments such as a channel number. An empty template means
// the operation is unsupported.
type Setting struct {
	Get     string
	Set     string
	Options []string // accepted values for Set, compared case-insensitively
}

// CommandTable holds the settings of one instrument model.
type CommandTable map[string]Setting

// Names returns the setting names in sorted order.
func (t CommandTable) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// GetCmd formats the query for the named setting.
func (t CommandTable) GetCmd(name string, args ...any) (string, error) {
	s, ok := t[name]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", name)
	}
	if s.Get == "" {
		return "", fmt.Errorf("setting %q is write-only", name)
	}
	return sprintf(s.Get, args), nil
}

// SetCmd formats the command for the named setting. The value is the last
// element of args.
func (t CommandTable) SetCmd(name string, args ...any) (string, error) {
	s, ok := t[name]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", name)
	}
	if s.Set == "" {
		return "", fmt.Errorf("setting %q is read-only", name)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("setting %q: missing value", name)
	}
	if len(s.Options) > 0 {
		v := fmt.Sprint(args[len(args)-1])
		ok := slices.ContainsFunc(s.Options, func(o string) bool { return strings.EqualFold(o, v) })
		if !ok {
			return "", fmt.Errorf("setting %q: %q not one of %s", name, v, strings.Join(s.Options, ", "))
		}
	}
	return fmt.Sprintf(s.Set, args...), nil
}

// Get queries the named setting and returns the raw reply.
func (i *Instrument) Get(t CommandTable, name string, args ...any) (string, error) {
	cmd, err := t.GetCmd(name, args...)
	if err != nil {
		return "", err
	}
	return i.Query(cmd)
}

// GetFloat queries the named setting as a float.
func (i *Instrument) GetFloat(t CommandTable, name string, args ...any) (float64, error) {
	cmd, err := t.GetCmd(name, args...)
	if err != nil {
		return 0, err
	}
	return i.Float(cmd)
}

// GetInt queries the named setting as an integer.
func (i *Instrument) GetInt(t CommandTable, name string, args ...any) (int, error) {
	cmd, err := t.GetCmd(name, args...)
	if err != nil {
		return 0, err
	}
	return i.Int(cmd)
}

// GetBool queries the named setting as an ON/OFF value.
func (i *Instrument) GetBool(t CommandTable, name string, args ...any) (bool, error) {
	cmd, err := t.GetCmd(name, args...)
	if err != nil {
		return false, err
	}
	return i.Bool(cmd)
}

// Set sends the named setting. The value is the last element of args.
func (i *Instrument) Set(t CommandTable, name string, args ...any) error {
	cmd, err := t.SetCmd(name, args...)
	if err != nil {
		return err
	}
	return i.Command(cmd)
}

// OnOff renders a bool the way SCPI expects it.
func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
