package observer

// NameHolder is anything that names an observer, typically the plugin's
// component or a Name.
type NameHolder interface {
	ObserverName() string
}

// Name is a NameHolder for a plain observer name.
type Name string

func (n Name) ObserverName() string { return string(n) }
