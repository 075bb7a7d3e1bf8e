package parser

import (
	"SwarmFormation/internal/model"
	"fmt"
	"strconv"
	"strings"
)

// SetpointToCSV renders a setpoint for the flight controller serial link.
// Format: SP,MODE_X,MODE_Y,MODE_Z,MODE_YAW,X,Y,Z,YAW,VX,VY
func SetpointToCSV(sp model.Setpoint) string {
	return fmt.Sprintf("SP,%d,%d,%d,%d,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f",
		sp.ModeX, sp.ModeY, sp.ModeZ, sp.ModeYaw, sp.X, sp.Y, sp.Z, sp.Yaw, sp.VX, sp.VY)
}

// ParseSetpointCSV parses a line produced by SetpointToCSV.
func ParseSetpointCSV(line string) (model.Setpoint, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 11 || fields[0] != "SP" {
		return model.Setpoint{}, fmt.Errorf("expected SP line with 11 fields, got %d", len(fields))
	}
	var modes [4]model.AxisMode
	for i := range modes {
		m, err := strconv.ParseUint(fields[1+i], 10, 8)
		if err != nil {
			return model.Setpoint{}, fmt.Errorf("invalid mode field %d", i)
		}
		modes[i] = model.AxisMode(m)
	}
	var vals [6]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[5+i], 64)
		if err != nil {
			return model.Setpoint{}, fmt.Errorf("invalid value field %d", i)
		}
		vals[i] = v
	}
	return model.Setpoint{
		ModeX: modes[0], ModeY: modes[1], ModeZ: modes[2], ModeYaw: modes[3],
		X: vals[0], Y: vals[1], Z: vals[2], Yaw: vals[3], VX: vals[4], VY: vals[5],
	}, nil
}
