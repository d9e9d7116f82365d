package models

// Market is a grocery market known to the backend, identified by the
// market_id extracted from its receipts.
type Market struct {
	ID        int    `json:"id"`
	MarketID  string `json:"market_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

// ProductDetail is one priced product carried by a market.
type ProductDetail struct {
	ID               int     `json:"id"`
	NCM              string  `json:"ncm"`
	EAN              string  `json:"ean,omitempty"`
	ProductName      string  `json:"product_name,omitempty"`
	Quantity         float64 `json:"quantity"`
	UnidadeComercial string  `json:"unidade_comercial"`
	Price            float64 `json:"price"`
	NFCeURL          string  `json:"nfce_url,omitempty"`
	PurchaseDate     string  `json:"purchase_date"`
	CreatedAt        string  `json:"created_at"`
	LastUpdated      string  `json:"last_updated,omitempty"`
}

// MarketProductsResponse lists everything a single market currently carries.
type MarketProductsResponse struct {
	Market   Market          `json:"market"`
	Products []ProductDetail `json:"products"`
	Total    int             `json:"total"`
}

// ProductSearchResult aggregates one product across all markets that carry it.
type ProductSearchResult struct {
	ProductName      string  `json:"product_name"`
	EAN              string  `json:"ean,omitempty"`
	NCM              string  `json:"ncm"`
	UnidadeComercial string  `json:"unidade_comercial"`
	MarketsCount     int     `json:"markets_count"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
}

// ProductSearchResponse is the result of a product name search.
type ProductSearchResponse struct {
	Query   string                `json:"query"`
	Results []ProductSearchResult `json:"results"`
	Total   int                   `json:"total"`
}

// CompareProduct identifies one shopping-list product for price comparison.
type CompareProduct struct {
	ProductName string `json:"product_name"`
	EAN         string `json:"ean,omitempty"`
	NCM         string `json:"ncm"`
}

// CompareRequest asks the backend to price a set of products across markets.
type CompareRequest struct {
	Products  []CompareProduct `json:"products"`
	MarketIDs []string         `json:"market_ids"`
}

// ComparisonRow is the per-product outcome of a comparison. Prices maps
// market_id to the price in that market, nil when the market does not
// carry the product.
type ComparisonRow struct {
	ProductName string              `json:"product_name"`
	EAN         string              `json:"ean,omitempty"`
	NCM         string              `json:"ncm"`
	Prices      map[string]*float64 `json:"prices"`
	MinPrice    *float64            `json:"min_price"`
	MaxPrice    *float64            `json:"max_price"`
	AllEqual    bool                `json:"all_equal"`
}

// PriceForMarket returns the price of this product in the given market,
// or false when the market does not carry it.
func (r *ComparisonRow) PriceForMarket(marketID string) (float64, bool) {
	price, ok := r.Prices[marketID]
	if !ok || price == nil {
		return 0, false
	}
	return *price, true
}

// CompareResponse maps market ids to display names and carries one row
// per compared product.
type CompareResponse struct {
	Markets    map[string]string `json:"markets"`
	Comparison []ComparisonRow   `json:"comparison"`
}
