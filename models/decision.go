package models

// Decision はプレイヤーが1ラウンドで行う決定です。
// Parcels は疎なマップで、未設定の区画は「変更なし」を意味します。
type Decision struct {
	Parcels     map[int]CropType  `json:"parcels"`
	Machines    float64           `json:"machines"`
	Fertilizer  *bool             `json:"fertilizer,omitempty"`
	PriceFixing map[CropType]bool `json:"priceFixing,omitempty"`
}

func (d Decision) Clone() Decision {
	out := Decision{Machines: d.Machines}
	if d.Parcels != nil {
		out.Parcels = make(map[int]CropType, len(d.Parcels))
		for k, v := range d.Parcels {
			out.Parcels[k] = v
		}
	}
	if d.Fertilizer != nil {
		f := *d.Fertilizer
		out.Fertilizer = &f
	}
	if d.PriceFixing != nil {
		out.PriceFixing = make(map[CropType]bool, len(d.PriceFixing))
		for k, v := range d.PriceFixing {
			out.PriceFixing[k] = v
		}
	}
	return out
}

// Validate は送信前の決定を検証します。
func (d Decision) Validate() error {
	for idx, crop := range d.Parcels {
		if idx < 0 || idx >= ParcelCount {
			return &ValidationError{Field: "parcels", Reason: "parcel index out of range"}
		}
		if !crop.Valid() {
			return &ValidationError{Field: "parcels", Reason: "unknown crop " + string(crop)}
		}
	}
	if d.Machines < 0 {
		return &ValidationError{Field: "machines", Reason: "must not be negative"}
	}
	for crop := range d.PriceFixing {
		if !crop.Valid() {
			return &ValidationError{Field: "priceFixing", Reason: "unknown crop " + string(crop)}
		}
	}
	return nil
}
