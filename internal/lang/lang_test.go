package lang

import "testing"

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		lang Language
	}{
		{".py", Python},
		{".xml", XML},
		{".XML", XML},
	}
	for _, tt := range tests {
		spec := ForExtension(tt.ext)
		if spec == nil {
			t.Errorf("ForExtension(%q) = nil, want %s", tt.ext, tt.lang)
			continue
		}
		if spec.Language != tt.lang {
			t.Errorf("ForExtension(%q).Language = %s, want %s", tt.ext, spec.Language, tt.lang)
		}
	}
}

func TestForLanguage(t *testing.T) {
	for _, lang := range AllLanguages() {
		if spec := ForLanguage(lang); spec == nil {
			t.Errorf("ForLanguage(%s) = nil", lang)
		}
	}
}

func TestUnknownExtension(t *testing.T) {
	if spec := ForExtension(".js"); spec != nil {
		t.Errorf("ForExtension(.js) should be nil, got %v", spec)
	}
}

func TestForPathSkipsManifests(t *testing.T) {
	if _, ok := ForPath("sale/__manifest__.py"); ok {
		t.Error("manifest should not be a source file")
	}
	if !IsManifest("sale/__openerp__.py") {
		t.Error("__openerp__.py should be a manifest")
	}
	if l, ok := ForPath("sale/models/sale_order.py"); !ok || l != Python {
		t.Errorf("ForPath(models) = %s, %v", l, ok)
	}
	if l, ok := ForPath("sale/views/sale_views.xml"); !ok || l != XML {
		t.Errorf("ForPath(views) = %s, %v", l, ok)
	}
}
