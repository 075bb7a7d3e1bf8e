// Package parser implements the JSON encoding used on the operator channel:
// reports pushed to the console and commands typed into it.
package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"SwarmFormation/internal/model"
)

// commandMessage is the JSON form a console may send: {"command":"square"} or {"command":4}.
type commandMessage struct {
	Command json.RawMessage `json:"command"`
}

// EncodeReport encodes a Report into JSON bytes.
func EncodeReport(r model.Report) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeReport decodes JSON bytes into a Report.
func DecodeReport(b []byte) (model.Report, error) {
	var r model.Report
	err := json.Unmarshal(b, &r)
	return r, err
}

// ParseCommand accepts a bare name ("land"), a decimal code ("3") or a JSON object.
func ParseCommand(s string) (model.Command, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var m commandMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return model.CmdNone, fmt.Errorf("invalid command json: %w", err)
		}
		var name string
		if err := json.Unmarshal(m.Command, &name); err == nil {
			return ParseCommand(name)
		}
		var code int32
		if err := json.Unmarshal(m.Command, &code); err != nil {
			return model.CmdNone, fmt.Errorf("invalid command field %s", string(m.Command))
		}
		return checkCode(code)
	}
	if code, err := strconv.ParseInt(s, 10, 32); err == nil {
		return checkCode(int32(code))
	}
	if c, ok := model.CommandByName(s); ok {
		return c, nil
	}
	return model.CmdNone, fmt.Errorf("unknown command %q", s)
}

func checkCode(code int32) (model.Command, error) {
	c := model.Command(code)
	if !c.Known() {
		return model.CmdNone, fmt.Errorf("unknown command code %d", code)
	}
	return c, nil
}

// EncodeCommand renders a command the way consoles send it.
func EncodeCommand(c model.Command) ([]byte, error) {
	return json.Marshal(map[string]string{"command": c.String()})
}
