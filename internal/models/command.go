package models

// Command is a device control instruction relayed over MQTT.
type Command string

const (
	CommandOn  Command = "ON"
	CommandOff Command = "OFF"
)

// ParseCommand accepts exactly "ON" or "OFF". Case variants are rejected.
func ParseCommand(s string) (Command, bool) {
	switch Command(s) {
	case CommandOn, CommandOff:
		return Command(s), true
	}
	return "", false
}

type CommandRequest struct {
	Command string `json:"command"`
}

type CommandResponse struct {
	Status      string  `json:"status"`
	CommandSent Command `json:"command_sent"`
}
