// Package osimport turns the text layer of a service-order (OS) PDF into a
// structured record. Every field is best-effort; nothing here touches storage.
package osimport

// ExtractedOrder is the transient result of parsing one pasted service order
type ExtractedOrder struct {
	Number       string `json:"numero,omitempty"`
	EntryDate    string `json:"data_entrada,omitempty"`
	EntryTime    string `json:"hora_entrada,omitempty"`
	Status       string `json:"status,omitempty"`
	ForecastDate string `json:"previsao_data,omitempty"`
	ForecastTime string `json:"previsao_hora,omitempty"`
	Password     string `json:"senha,omitempty"`
	CustomerName string `json:"cliente,omitempty"`
	TaxID        string `json:"cpf_cnpj,omitempty"`
	Phone        string `json:"contato,omitempty"`
	AltPhone     string `json:"telefone,omitempty"`
	Street       string `json:"endereco,omitempty"`
	StreetNumber string `json:"numero_endereco,omitempty"`
	Complement   string `json:"complemento,omitempty"`
	Neighborhood string `json:"bairro,omitempty"`
	City         string `json:"cidade,omitempty"`
	State        string `json:"estado,omitempty"`
	PostalCode   string `json:"cep,omitempty"`
	DeviceType   string `json:"tipo_aparelho,omitempty"`
	Brand        string `json:"marca,omitempty"`
	Model        string `json:"modelo,omitempty"`
	IMEI         string `json:"imei,omitempty"`
	Serial       string `json:"serie,omitempty"`
	Problem      string `json:"problema,omitempty"`
	Condition    string `json:"condicoes,omitempty"`
	HasPassword  string `json:"possui_senha,omitempty"`
	Seller       string `json:"vendedor,omitempty"`
	AccessCode   string `json:"codigo_acesso,omitempty"`
}
