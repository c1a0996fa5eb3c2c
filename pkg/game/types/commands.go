package types

import "github.com/cbodonnell/tickrelay/pkg/messages"

// Command kinds handled by the server.
const (
	CommandConnect        messages.CommandKind = "connect"
	CommandDisconnect     messages.CommandKind = "disconnect"
	CommandMoveUnit       messages.CommandKind = "move_unit"
	CommandFire           messages.CommandKind = "fire"
	CommandMoveShell      messages.CommandKind = "move_shell"
	CommandCheckGameOver  messages.CommandKind = "check_game_over"
	CommandSpawnEntities  messages.CommandKind = "spawn_entities"
	CommandShutdownServer messages.CommandKind = "shutdown_server"
)

// Command kinds handled by clients.
const (
	CommandLoadMap        messages.CommandKind = "load_map"
	CommandGameOver       messages.CommandKind = "game_over"
	CommandServerShutdown messages.CommandKind = "server_shutdown"
)

type ConnectPayload struct {
	Name string `json:"name"`
	Host bool   `json:"host"`
}

type MoveUnitPayload struct {
	Direction Direction `json:"direction"`
}

type MoveShellPayload struct {
	ShellID uint32 `json:"shellId"`
}

// LoadMapPayload is sent only to a joining peer.
type LoadMapPayload struct {
	MapName  string `json:"mapName"`
	PlayerID int64  `json:"playerId"`
	TickRate int    `json:"tickRate"`
}

type GameOverPayload struct {
	Winner int64 `json:"winner"`
}
