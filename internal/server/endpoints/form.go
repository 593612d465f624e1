package endpoints

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/staticdata"
)

var (
	formSchemaOnce sync.Once
	formSchema     *jsonschema.Schema
	formSchemaErr  error
)

// validateForm checks the setup form against the embedded schema. The
// returned error message is safe to echo back to the caller.
func validateForm(form *pipeline.Form) error {
	formSchemaOnce.Do(func() {
		schemaText, err := staticdata.FormSchema()
		if err != nil {
			formSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("setup_form_schema.json", strings.NewReader(schemaText)); err != nil {
			formSchemaErr = fmt.Errorf("failed to load setup form schema: %w", err)
			return
		}
		formSchema, formSchemaErr = compiler.Compile("setup_form_schema.json")
	})
	if formSchemaErr != nil {
		return formSchemaErr
	}

	data, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("failed to marshal setup form: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := formSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid setup form: %w", err)
	}
	return nil
}
