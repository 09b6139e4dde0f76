package urls

// AVM publishes the interface notes below on its developer pages.

// SessionIDTechNote describes the login_sid.lua challenge-response login
// and the lifetime of session IDs.
const SessionIDTechNote = "https://avm.de/fileadmin/user_upload/Global/Service/Schnittstellen/AVM_Technical_Note_-_Session_ID_english_2021-05-03.pdf"

// AHAInterface documents the homeautoswitch.lua commands used for
// switchable outlets.
const AHAInterface = "https://avm.de/fileadmin/user_upload/Global/Service/Schnittstellen/AHA-HTTP-Interface.pdf"

// DeveloperPortal is the landing page for all AVM interface documents.
const DeveloperPortal = "https://avm.de/service/schnittstellen/"

// Project is the source repository for bug reports.
const Project = "https://github.com/muurk/fritzbox"
