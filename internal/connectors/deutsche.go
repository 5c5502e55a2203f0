package connectors

import (
	"context"
	"net/url"

	"github.com/enterprise-universe/universe-gateway/internal/types"
)

func (c *Connectors) LexofficeContacts(ctx context.Context, page, size int) (*types.Response, error) {
	if size <= 0 {
		size = 100
	}
	return c.get(ctx, Lexoffice, "/contacts", map[string]any{"page": page, "size": size})
}

func (c *Connectors) LexofficeCreateInvoice(ctx context.Context, invoice any) (*types.Response, error) {
	return c.post(ctx, Lexoffice, "/invoices", invoice)
}

func (c *Connectors) LexofficeVouchers(ctx context.Context, voucherType string, page int) (*types.Response, error) {
	return c.get(ctx, Lexoffice, "/voucherlist", map[string]any{"voucherType": voucherType, "page": page})
}

func (c *Connectors) SevdeskContacts(ctx context.Context) (*types.Response, error) {
	return c.get(ctx, Sevdesk, "/Contact", nil)
}

func (c *Connectors) SevdeskCreateInvoice(ctx context.Context, invoice any) (*types.Response, error) {
	return c.post(ctx, Sevdesk, "/Invoice", invoice)
}

func (c *Connectors) DHLCreateShipment(ctx context.Context, shipment any) (*types.Response, error) {
	return c.post(ctx, DHL, "/parcel/de/shipping/v2/orders", shipment)
}

func (c *Connectors) DHLTrack(ctx context.Context, trackingNumber string) (*types.Response, error) {
	return c.get(ctx, DHL, "/track/shipments", map[string]any{"trackingNumber": trackingNumber})
}

// DHLFindLocations searches service points; address keys follow the DHL
// location finder API (countryCode, postalCode, addressLocality, ...).
func (c *Connectors) DHLFindLocations(ctx context.Context, address map[string]string) (*types.Response, error) {
	params := make(map[string]any, len(address))
	for k, v := range address {
		params[k] = v
	}
	return c.get(ctx, DHL, "/location-finder/v1/find-by-address", params)
}

func (c *Connectors) SearchCompany(ctx context.Context, query string) (*types.Response, error) {
	return c.get(ctx, Handelsregister, "/search", map[string]any{"query": query})
}

func (c *Connectors) CompanyDetails(ctx context.Context, hrNumber string) (*types.Response, error) {
	return c.get(ctx, Handelsregister, "/company/"+url.PathEscape(hrNumber), nil)
}

func (c *Connectors) LoxoneStructure(ctx context.Context) (*types.Response, error) {
	return c.get(ctx, Loxone, "/data/LoxAPP3.json", nil)
}

func (c *Connectors) LoxoneStatus(ctx context.Context) (*types.Response, error) {
	return c.get(ctx, Loxone, "/jdev/sps/status", nil)
}

// LoxoneControl sets a Miniserver input, e.g. ("0f1e...", "On").
func (c *Connectors) LoxoneControl(ctx context.Context, uuid, value string) (*types.Response, error) {
	return c.get(ctx, Loxone, "/jdev/sps/io/"+url.PathEscape(uuid)+"/"+url.PathEscape(value), nil)
}

func (c *Connectors) ImmoScoutSearch(ctx context.Context, params map[string]any) (*types.Response, error) {
	return c.get(ctx, ImmoScout24, "/search/v1.0/search/region", params)
}
