// Package content converts arbitrary upstream payloads into an ordered
// sequence of typed blocks, the bridge's sole output unit.
package content

// BlockType identifies how a block's text should be interpreted.
type BlockType string

const (
	TypeText  BlockType = "text"
	TypeHTML  BlockType = "html"
	TypeJSON  BlockType = "json"
	TypeImage BlockType = "image"
)

// Block is the atomic unit of bridge output. Image blocks carry the
// base64-encoded image in Text.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

// TextBlock builds a plain text block.
func TextBlock(text string) Block {
	return Block{Type: TypeText, Text: text}
}
