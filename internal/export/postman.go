package export

import (
	"fmt"
	"os"

	postman "github.com/rbretecher/go-postman-collection"
)

// BuildPostmanCollection renders a Bundle as a Postman collection: one
// request per discovered (endpoint, method) pair, added directly to a
// collection named after the service (no folders). This is a SPEC_FULL-supplemented export
// format with no equivalent in the original implementation's export/
// package.
func BuildPostmanCollection(b *Bundle) *postman.Collection {
	c := postman.CreateCollection(b.Service.Name, fmt.Sprintf("Discovered API surface for %s", b.Service.BaseURL))

	for _, ep := range b.Endpoints {
		methods := ep.Methods
		if len(methods) == 0 {
			methods = []string{"GET"}
		}
		for _, method := range methods {
			item := postman.CreateItem(postman.Item{
				Name: fmt.Sprintf("%s %s", method, ep.Path),
				Request: &postman.Request{
					URL:    &postman.URL{Raw: b.Service.BaseURL + ep.Path},
					Method: postman.Method(method),
				},
			})
			c.AddItem(item)
		}
	}
	return c
}

// WritePostman renders and writes a Bundle as a Postman v2.1 collection.
func WritePostman(b *Bundle, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return BuildPostmanCollection(b).Write(f, postman.V210)
}
