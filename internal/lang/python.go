package lang

func init() {
	Register(&LanguageSpec{
		Language:            Python,
		FileExtensions:      []string{".py"},
		ClassNodeTypes:      []string{"class_definition"},
		AssignmentNodeTypes: []string{"assignment"},
		CallNodeTypes:       []string{"call"},
		ManifestNames:       []string{"__manifest__.py", "__openerp__.py"},
	})
}
