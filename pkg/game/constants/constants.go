package constants

const (
	// CanvasSize is the width and height of every arena in pixels
	CanvasSize float64 = 800.0
	// CollisionCellSize is the resolv cell size
	CollisionCellSize int = 20

	// TankWidth is the width of a tank
	TankWidth float64 = 36.0
	// TankHeight is the height of a tank
	TankHeight float64 = 36.0
	// TankSpeed is the distance a tank moves per MoveUnit command
	TankSpeed float64 = 10.0
	// TankArmor scales incoming damage
	TankArmor float64 = 0.95

	// ShellSize is the width and height of a shell
	ShellSize float64 = 10.0
	// ShellSpeed is the distance a shell travels per second
	ShellSpeed float64 = 900.0
	// ShellDamage is the base damage of a shell before armor
	ShellDamage float64 = 5.0
	// ShellMuzzleOffset is the distance from the tank centre to where a shell spawns
	ShellMuzzleOffset float64 = 30.0

	// FireCooldownMs is the minimum time between two shots from one tank
	FireCooldownMs int64 = 50
)
