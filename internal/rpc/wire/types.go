package wire

// UserService messages -----------------------------------------------------

type ValidateUserRequest struct {
	UserID            int64  `json:"user_id"`
	RequestingService string `json:"requesting_service"`
}

type ValidateUserResponse struct {
	Valid        bool   `json:"valid"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	IsActive     bool   `json:"is_active"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProductService messages --------------------------------------------------

type GetProductInfoRequest struct {
	ProductID int64 `json:"product_id"`
}

type GetProductInfoResponse struct {
	Found          bool   `json:"found"`
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Price          string `json:"price"` // decimal, two fractional digits
	InventoryCount int32  `json:"inventory_count"`
	IsActive       bool   `json:"is_active"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

type CheckAvailabilityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type CheckAvailabilityResponse struct {
	Available        bool   `json:"available"`
	CurrentInventory int32  `json:"current_inventory"`
	ErrorMessage     string `json:"error_message,omitempty"`
}
