package model

// BlockState is a point-in-time copy of one block's scheduling state.
type BlockState struct {
	Index   int         `json:"index"`
	Status  BlockStatus `json:"status"`
	Frame   int         `json:"frame"`
	CurrRow int         `json:"curr_row"`
	Counter int         `json:"counter"`
	Cycles  uint64      `json:"cycles"`
	Rows    []RowState  `json:"rows"`
}

// RowState describes one row of a block.
type RowState struct {
	Systems []string `json:"systems"`
}
