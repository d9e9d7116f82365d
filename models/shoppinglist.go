package models

import "time"

// ShoppingListItem is one product saved to the local shopping list.
// Items are deduplicated on the (EAN, ProductName) pair.
type ShoppingListItem struct {
	ID               int64     `json:"id"`
	ProductName      string    `json:"product_name"`
	EAN              string    `json:"ean,omitempty"`
	NCM              string    `json:"ncm"`
	UnidadeComercial string    `json:"unidade_comercial"`
	AddedAt          time.Time `json:"added_at"`
}

// AddListItemRequest is the payload for adding a product to the list.
type AddListItemRequest struct {
	ProductName      string `json:"product_name"`
	EAN              string `json:"ean"`
	NCM              string `json:"ncm"`
	UnidadeComercial string `json:"unidade_comercial"`
}
