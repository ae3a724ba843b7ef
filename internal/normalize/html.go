package normalize

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// selector matches an element by tag and an attribute condition, roughly
// the CSS forms tag[attr*=value] and tag[attr^=value].
type selector struct {
	// tag is the element name; empty matches any element.
	tag string

	// attr is the attribute to test; empty matches on tag alone.
	attr string

	// value must be contained in the attribute (or prefix it, see prefix).
	// Empty only requires the attribute to be present.
	value string

	// prefix switches the attribute test from contains to has-prefix.
	prefix bool
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.attr == "" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key != s.attr {
			continue
		}
		if s.prefix {
			return strings.HasPrefix(a.Val, s.value)
		}
		return strings.Contains(a.Val, s.value)
	}
	return false
}

// path is a descendant chain: each selector is searched within the match of
// the previous one ("div[data-testid*=description] p").
type path []selector

func testid(tag, value string) selector { return selector{tag: tag, attr: "data-testid", value: value} }
func class(tag, value string) selector  { return selector{tag: tag, attr: "class", value: value} }
func tag(name string) selector          { return selector{tag: name} }

// Selector lists per field, tried in order until one yields text.
var (
	cardPaths = []path{
		{selector{tag: "div", attr: "id", value: "listing_", prefix: true}},
		{testid("article", "listing")},
		{testid("div", "listing-card")},
		{class("div", "ListingCard")},
		{tag("article")},
	}
	urlPaths = []path{
		{selector{tag: "a", attr: "href", value: "/details/"}},
		{selector{tag: "a", attr: "href"}},
	}
	titlePaths = []path{
		{testid("h1", "title")},
		{testid("h2", "listing-title")},
		{tag("h1")},
		{tag("h2")},
		{tag("h3")},
	}
	pricePaths = []path{
		{testid("p", "price")},
		{testid("div", "price")},
		{testid("span", "price")},
		{class("span", "price")},
		{class("p", "price")},
	}
	addressPaths = []path{
		{tag("address")},
		{testid("p", "address")},
		{class("span", "address")},
		{testid("p", "listing-description")},
	}
	categoryPaths = []path{
		{testid("span", "badge")},
		{class("span", "category")},
	}
	propertyTypePaths = []path{
		{class("span", "property-type")},
		{testid("span", "property-type")},
	}
	agentPaths = []path{
		{testid("p", "listing-agent")},
		{testid("p", "agent-name")},
		{class("span", "agent-name")},
		{class("span", "agent")},
	}
	agentPhonePaths = []path{
		{selector{tag: "a", attr: "href", value: "tel:", prefix: true}},
		{class("span", "agent-phone")},
	}
	bedroomPaths = []path{
		{testid("li", "bed")},
		{class("span", "bedrooms")},
	}
	bathroomPaths = []path{
		{testid("li", "bath")},
		{class("span", "bathrooms")},
	}
	livingRoomPaths = []path{
		{testid("li", "reception")},
		{testid("li", "living")},
		{class("span", "receptions")},
	}
	descriptionPaths = []path{
		{testid("div", "description"), tag("p")},
		{class("div", "description"), tag("p")},
		{testid("p", "description")},
	}
	epcPaths = []path{
		{testid("span", "epc-rating")},
		{class("span", "epc-rating")},
	}
	featurePaths = []path{
		{testid("ul", "features"), tag("li")},
		{class("ul", "features"), tag("li")},
	}
)

var (
	latitudePattern  = regexp.MustCompile(`["']?latitude["']?\s*:\s*["']?(-?\d+(?:\.\d+)?)`)
	longitudePattern = regexp.MustCompile(`["']?longitude["']?\s*:\s*["']?(-?\d+(?:\.\d+)?)`)
	uprnPattern      = regexp.MustCompile(`["']?uprn["']?\s*:\s*["']?(\d{6,12})`)
)

// imageHosts are the CDN hosts that serve listing photos.
var imageHosts = []string{"zoocdn.com"}

// HTMLExtractor reads a listing card or detail page.
//
// Missing fields are left out of the result rather than failing the whole
// listing; only a document with no recognizable content is a parse error.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(payload model.RawPayload) (model.Fields, error) {
	doc, err := html.Parse(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, &model.ParseError{SourceURL: payload.SourceURL, Reason: "invalid listing html", Err: err}
	}

	// A lone card is the listing; a page with several cards (or none) is a
	// detail page and is read as a whole.
	root := doc
	for _, p := range cardPaths {
		if cards := findAll(doc, p); len(cards) > 0 {
			if len(cards) == 1 {
				root = cards[0]
			}
			break
		}
	}

	fields := make(model.Fields)
	setText := func(field string, paths []path) {
		if text := firstText(root, paths); text != "" {
			fields[field] = text
		}
	}

	setText(model.FieldTitle, titlePaths)
	setText(model.FieldPrice, pricePaths)
	setText(model.FieldAddress, addressPaths)
	setText(model.FieldPropertyType, propertyTypePaths)
	setText(model.FieldAgentName, agentPaths)
	setText(model.FieldAgentPhone, agentPhonePaths)
	setText(model.FieldBedrooms, bedroomPaths)
	setText(model.FieldBathrooms, bathroomPaths)
	setText(model.FieldLivingRooms, livingRoomPaths)
	setText(model.FieldDescription, descriptionPaths)
	setText(model.FieldEPCRating, epcPaths)
	setText(model.FieldCategory, categoryPaths)

	if id := attrOf(root, "data-listing-id"); id != "" {
		fields[model.FieldListingID] = id
	}
	if link := findFirst(root, urlPaths); link != nil {
		fields[model.FieldURL] = getAttr(link, "href")
	}

	if features := allText(root, featurePaths); len(features) > 0 {
		fields[model.FieldFeatures] = features
	}
	if images := listingImages(root); len(images) > 0 {
		fields[model.FieldImages] = images
	}

	scripts := scriptText(doc)
	if lat := latitudePattern.FindStringSubmatch(scripts); lat != nil {
		if lon := longitudePattern.FindStringSubmatch(scripts); lon != nil {
			fields[model.FieldLatitude] = lat[1]
			fields[model.FieldLongitude] = lon[1]
		}
	}
	if m := uprnPattern.FindStringSubmatch(scripts); m != nil {
		fields[model.FieldUPRN] = m[1]
	}

	if len(fields) == 0 {
		return nil, &model.ParseError{SourceURL: payload.SourceURL, Reason: "no listing content found"}
	}
	return fields, nil
}

// SplitListings cuts a search results page into one payload per listing
// card. A page without recognizable cards yields no payloads.
func SplitListings(r io.Reader, sourceURL string) ([]model.RawPayload, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &model.ParseError{SourceURL: sourceURL, Reason: "invalid search page html", Err: err}
	}

	for _, p := range cardPaths {
		cards := findAll(doc, p)
		if len(cards) == 0 {
			continue
		}
		payloads := make([]model.RawPayload, 0, len(cards))
		for _, card := range cards {
			var buf bytes.Buffer
			if err := html.Render(&buf, card); err != nil {
				return nil, &model.ParseError{SourceURL: sourceURL, Reason: "render listing card", Err: err}
			}
			payloads = append(payloads, model.RawPayload{
				Body:        buf.Bytes(),
				ContentType: ContentTypeHTML,
				SourceURL:   sourceURL,
			})
		}
		return payloads, nil
	}
	return nil, nil
}

// findFirst returns the first element matched by any of paths.
func findFirst(root *html.Node, paths []path) *html.Node {
	for _, p := range paths {
		if found := findAll(root, p); len(found) > 0 {
			return found[0]
		}
	}
	return nil
}

// findAll returns every element matched by p, in document order.
// Matched elements are not searched for nested matches of the same selector.
func findAll(root *html.Node, p path) []*html.Node {
	if len(p) == 0 {
		return nil
	}
	scopes := []*html.Node{root}
	for _, sel := range p {
		var next []*html.Node
		for _, scope := range scopes {
			next = append(next, descendants(scope, sel)...)
		}
		if len(next) == 0 {
			return nil
		}
		scopes = next
	}
	return scopes
}

func descendants(n *html.Node, sel selector) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if sel.matches(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// firstText returns the text of the first match, across paths, whose text
// is non-empty.
func firstText(root *html.Node, paths []path) string {
	for _, p := range paths {
		for _, n := range findAll(root, p) {
			if text := textOf(n); text != "" {
				return text
			}
		}
	}
	return ""
}

// allText returns the distinct texts of every match of the first path that
// matches anything.
func allText(root *html.Node, paths []path) []string {
	for _, p := range paths {
		nodes := findAll(root, p)
		if len(nodes) == 0 {
			continue
		}
		texts := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if text := textOf(n); text != "" {
				texts = append(texts, text)
			}
		}
		return uniqueStrings(texts)
	}
	return nil
}

// textOf concatenates the element's text nodes separated by spaces.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(sb.String())
}

// scriptText returns the concatenated contents of all script elements.
func scriptText(doc *html.Node) string {
	var sb strings.Builder
	for _, s := range findAll(doc, path{tag("script")}) {
		for c := s.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

func listingImages(root *html.Node) []string {
	var images []string
	for _, img := range findAll(root, path{selector{tag: "img", attr: "src"}}) {
		src := strings.TrimSpace(getAttr(img, "src"))
		for _, host := range imageHosts {
			if strings.Contains(src, host) {
				if strings.HasPrefix(src, "//") {
					src = "https:" + src
				}
				images = append(images, src)
				break
			}
		}
	}
	return uniqueStrings(images)
}

// attrOf returns the first value of key on root or any descendant.
func attrOf(root *html.Node, key string) string {
	if v := getAttr(root, key); v != "" {
		return v
	}
	if n := findFirst(root, []path{{selector{attr: key}}}); n != nil {
		return getAttr(n, key)
	}
	return ""
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
