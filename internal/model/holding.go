package model

// HoldingRecord describes one physical copy of a catalog item. A catalog
// item can have many copies, each with its own barcode, so a barcode lookup
// yields a set of HoldingRecords sharing the same TindID.
type HoldingRecord struct {
	Barcode       string `json:"barcode"`                 // barcode of this copy
	Status        string `json:"status"`                  // shelf state, e.g. "on shelf", "on loan", "lost"
	CallNumber    string `json:"call_number,omitempty"`   // call_no
	CopyNumber    string `json:"copy_number,omitempty"`   // description
	LocationCode  string `json:"location_code,omitempty"` // location_code
	LocationName  string `json:"location_name,omitempty"` // location_name
	TindID        string `json:"tind_id"`                 // id_bibrec, shared by all copies of the item
	ItemType      string `json:"item_type,omitempty"`     // item_type, e.g. "Book"
	HoldingsTotal int    `json:"holdings_total"`          // number of copies returned for the item
}
