// Matrix keypad scanning.
// Drives column lines low one at a time and samples pulled-up row
// lines to resolve at most one pressed key per scan pass.
package core

import "errors"

// NoKey is the scan result when no key is pressed.
const NoKey byte = ' '

// DefaultSettleUs is the default electrical settling time between
// driving a column and sampling the rows.
const DefaultSettleUs uint32 = 1000

var (
	ErrNoRows         = errors.New("keypad: no row pins")
	ErrNoColumns      = errors.New("keypad: no column pins")
	ErrLayoutMismatch = errors.New("keypad: layout dimensions do not match pin counts")
	ErrRaggedLayout   = errors.New("keypad: layout rows have unequal lengths")
	ErrLayoutSentinel = errors.New("keypad: layout entry collides with the no-key sentinel")
	ErrDuplicateKey   = errors.New("keypad: duplicate key in layout")
	ErrZeroSettleTime = errors.New("keypad: settle time must be greater than zero")
)

// Layout is an immutable mapping from (row, column) to a key byte.
type Layout [][]byte

// Canned layouts for the common membrane keypads.
var (
	// Layout4x3 is the telephone-style 12-key pad.
	Layout4x3 = Layout{
		{'1', '2', '3'},
		{'4', '5', '6'},
		{'7', '8', '9'},
		{'*', '0', '#'},
	}

	// Layout4x4 is the 16-key hobby pad with an A-D column.
	Layout4x4 = Layout{
		{'1', '2', '3', 'A'},
		{'4', '5', '6', 'B'},
		{'7', '8', '9', 'C'},
		{'*', '0', '#', 'D'},
	}
)

// Rows returns the number of rows in the layout.
func (l Layout) Rows() int { return len(l) }

// Cols returns the number of columns, 0 for an empty layout.
func (l Layout) Cols() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

// validate checks the layout invariants: rectangular, every entry
// distinct from the sentinel, no key appearing twice.
func (l Layout) validate() error {
	if l.Rows() == 0 || l.Cols() == 0 {
		return ErrLayoutMismatch
	}

	seen := make(map[byte]bool, l.Rows()*l.Cols())
	for _, row := range l {
		if len(row) != l.Cols() {
			return ErrRaggedLayout
		}
		for _, key := range row {
			if key == NoKey {
				return ErrLayoutSentinel
			}
			if seen[key] {
				return ErrDuplicateKey
			}
			seen[key] = true
		}
	}
	return nil
}

// LayoutFromFlat rebuilds a Layout from a flattened row-major key table,
// as carried by the set_keypad_layout command.
func LayoutFromFlat(rows, cols int, flat []byte) (Layout, error) {
	if rows <= 0 {
		return nil, ErrNoRows
	}
	if cols <= 0 {
		return nil, ErrNoColumns
	}
	if len(flat) != rows*cols {
		return nil, ErrLayoutMismatch
	}

	layout := make(Layout, rows)
	for r := 0; r < rows; r++ {
		layout[r] = make([]byte, cols)
		copy(layout[r], flat[r*cols:(r+1)*cols])
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}
	return layout, nil
}

// Keypad owns a set of row-sense and column-drive pins plus the key
// layout. The pins are exclusively the scanner's for its lifetime; no
// other code may drive or read them.
type Keypad struct {
	rows     []GPIOPin
	cols     []GPIOPin
	layout   Layout
	settleUs uint32
}

// NewKeypad builds a scanner and configures its pins through the GPIO
// HAL: rows as pulled-up inputs, columns as open-drain outputs left
// released. Dimension or settle-time contract violations fail here,
// never at scan time.
func NewKeypad(rows, cols []GPIOPin, layout Layout, settleUs uint32) (*Keypad, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	if settleUs == 0 {
		return nil, ErrZeroSettleTime
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}
	if layout.Rows() != len(rows) || layout.Cols() != len(cols) {
		return nil, ErrLayoutMismatch
	}

	gpio := MustGPIO()
	for _, pin := range rows {
		if err := gpio.ConfigureInputPullUp(pin); err != nil {
			return nil, err
		}
	}
	for _, pin := range cols {
		if err := gpio.ConfigureOpenDrain(pin); err != nil {
			return nil, err
		}
		if err := gpio.SetPin(pin, true); err != nil {
			return nil, err
		}
	}

	k := &Keypad{
		rows:     make([]GPIOPin, len(rows)),
		cols:     make([]GPIOPin, len(cols)),
		layout:   layout,
		settleUs: settleUs,
	}
	copy(k.rows, rows)
	copy(k.cols, cols)
	return k, nil
}

// Rows returns the row count.
func (k *Keypad) Rows() int { return len(k.rows) }

// Cols returns the column count.
func (k *Keypad) Cols() int { return len(k.cols) }

// SettleUs returns the configured settling time in microseconds.
func (k *Keypad) SettleUs() uint32 { return k.settleUs }

// Scan performs one full pass over the matrix and returns the first
// pressed key, or NoKey if none. Columns are driven low one at a time
// in ascending index order; within an active column, rows are sampled
// in ascending index order and the first asserted (low) row wins. The
// pass releases the active column before returning, so exactly one
// column is ever driven at any instant.
//
// Scan keeps no state between calls. It performs no debouncing beyond
// the settle delay; callers needing bounce rejection should require N
// consecutive identical results (see KeypadPoller).
func (k *Keypad) Scan(d DelaySource) byte {
	gpio := MustGPIO()

	for c, colPin := range k.cols {
		_ = gpio.SetPin(colPin, false)
		d.DelayUs(k.settleUs)

		for r, rowPin := range k.rows {
			if !gpio.ReadPin(rowPin) {
				_ = gpio.SetPin(colPin, true)
				return k.layout[r][c]
			}
		}

		_ = gpio.SetPin(colPin, true)
	}

	return NoKey
}

// ReadChar polls Scan until a key resolves. It blocks indefinitely;
// callers wanting a bounded wait must wrap it.
func (k *Keypad) ReadChar(d DelaySource) byte {
	for {
		if key := k.Scan(d); key != NoKey {
			return key
		}
	}
}

// ReleaseColumns returns every column line to its released state. Used
// by emergency stop to leave the matrix electrically idle.
func (k *Keypad) ReleaseColumns() {
	gpio := MustGPIO()
	for _, pin := range k.cols {
		_ = gpio.SetPin(pin, true)
	}
}
