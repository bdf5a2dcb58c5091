package discord

const (
	// Embed colors
	colorGreen = 0x2ECC71 // verification success
	colorRed   = 0xE74C3C // unverification / failure
	colorBlue  = 0x3498DB // informational
	colorGray  = 0x95A5A6 // neutral
)
