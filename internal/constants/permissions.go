package constants

const (
	ViewCellar   = "view_cellar"
	EditCellar   = "edit_cellar"
	ImportCellar = "import_cellar"
	DeleteWine   = "delete_wine"
)
